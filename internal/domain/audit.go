package domain

import "time"

// ModerationAudit is the archived form of an unsafe verdict. The image
// itself is never stored; only its digest and geometry are kept.
type ModerationAudit struct {
	ID          string    `json:"id"`
	ImageSHA256 string    `json:"image_sha256"`
	Format      string    `json:"format"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Threshold   float64   `json:"threshold"`
	Verdict     Verdict   `json:"verdict"`
	CheckedAt   time.Time `json:"checked_at"`
}
