// Package migrations holds the sqlite schema in golang-migrate format.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
