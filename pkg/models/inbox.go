package models

// InboxItem is one parsed inbox file. Raw holds the exact file bytes, which
// are what the router writes to every destination.
type InboxItem struct {
	File   string
	Raw    []byte
	Report Report
}

// InboxFailure records an inbox file that could not be read or parsed.
type InboxFailure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}
