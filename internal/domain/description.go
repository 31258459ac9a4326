package domain

import "strings"

// DescriptionStatus tells a real description apart from a sentinel.
type DescriptionStatus string

const (
	DescriptionOK          DescriptionStatus = "ok"
	DescriptionUnavailable DescriptionStatus = "unavailable"
	DescriptionFailed      DescriptionStatus = "error"
)

// Description is the text produced for an image by a vision model.
// When Status is not DescriptionOK, Text holds a human-readable sentinel.
type Description struct {
	Text     string            `json:"description"`
	Provider string            `json:"provider"`
	Status   DescriptionStatus `json:"status"`
	Error    string            `json:"error,omitempty"`
}

// Usable reports whether the description can be embedded.
func (d Description) Usable() bool {
	return d.Status == DescriptionOK && strings.TrimSpace(d.Text) != ""
}
