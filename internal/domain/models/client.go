package models

// Client is a registered application allowed to request tokens.
type Client struct {
	ID int64
	// ClientID is the public, human-chosen identifier callers present ("Mobile", "Web").
	ClientID string
	Name     string
	// URL is used as the audience of issued access tokens.
	URL string
}
