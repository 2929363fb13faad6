package domain

import (
	"errors"
	"time"
)

// ErrInvalidInput marks a caller-supplied value that violates the boundary contract
// (wrong vector length, non-numeric or non-finite metrics, missing fields).
var ErrInvalidInput = errors.New("invalid input")

type Tier string

const (
	TierNone  Tier = "none"
	TierMinor Tier = "minor"
	TierMajor Tier = "major"
)

const (
	minorThreshold = 0.33
	majorThreshold = 0.66
)

// TierForScore maps an aggregate anomaly score to a tier. Boundary values belong
// to the higher tier: 0.33 is minor, 0.66 is major.
func TierForScore(score float64) Tier {
	if score < minorThreshold {
		return TierNone
	}
	if score < majorThreshold {
		return TierMinor
	}
	return TierMajor
}

func (t Tier) IsValid() bool {
	switch t {
	case TierNone, TierMinor, TierMajor:
		return true
	}
	return false
}

// Headline is the short user-facing verdict for a tier.
func (t Tier) Headline() string {
	switch t {
	case TierMinor:
		return "Minor anomaly detected."
	case TierMajor:
		return "Major anomaly detected! Please consult a doctor immediately."
	default:
		return "No anomaly detected."
	}
}

type Remedy struct {
	Factor string `json:"factor"`
	Advice string `json:"advice"`
}

type Assessment struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Input     WeeklyAverages `json:"input"`
	Score     float64        `json:"score"`
	Tier      Tier           `json:"tier"`
	ModelID   string         `json:"model_id"`
	Headline  string         `json:"headline"`
	Remedies  []Remedy       `json:"remedies,omitempty"`
	Narrative string         `json:"narrative,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	SourceAPI      = "api"
	SourceUpload   = "upload"
	SourceTelegram = "telegram"
	SourceSSH      = "ssh"
	SourceMCP      = "mcp"
)

type AssessmentFilter struct {
	Tier  *Tier
	Limit int
}
