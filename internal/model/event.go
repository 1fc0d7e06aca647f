package model

import (
	"time"

	"github.com/google/uuid"
)

// RenderEvent describes a completed transformation. It is published to the
// message queue after the response has been produced.
type RenderEvent struct {
	ID          uuid.UUID     `json:"id"`
	Spec        string        `json:"spec"`       // spec token as received
	SourceURL   string        `json:"source_url"` // decoded source url
	Steps       []string      `json:"steps"`      // step names in order
	ContentType string        `json:"content_type"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Bytes       int           `json:"bytes"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}
