package streamer

import (
	"strings"
	"time"
)

// StreamConfig describes one broadcast target. It is built per request and never persisted.
type StreamConfig struct {
	StreamKey string
	StreamURL string
	VideoPath string
}

// Validate checks the fields that cannot be defaulted.
func (c StreamConfig) Validate() error {
	if c.StreamKey == "" {
		return ErrMissingStreamKey
	}
	return nil
}

// Destination joins the ingest URL and stream key.
func (c StreamConfig) Destination() string {
	return strings.TrimRight(c.StreamURL, "/") + "/" + c.StreamKey
}

// keyPlaceholder stands in for the stream key in anything that gets logged.
const keyPlaceholder = "<stream-key>"

// Redact replaces every occurrence of the stream key in s. Encoder output
// echoes the destination URL, key included.
func (c StreamConfig) Redact(s string) string {
	if c.StreamKey == "" {
		return s
	}
	return strings.ReplaceAll(s, c.StreamKey, keyPlaceholder)
}

// Job is what the encoder needs to run one session.
type Job struct {
	VideoPath   string
	AudioPath   string
	Destination string
}

// Status is a snapshot of the manager's state. It never carries the stream key.
type Status struct {
	Active         bool       `json:"active"`
	SessionID      string     `json:"session_id,omitempty"`
	Generation     uint64     `json:"generation,omitempty"`
	PID            int        `json:"pid,omitempty"`
	AudioPath      string     `json:"audio_path,omitempty"`
	VideoPath      string     `json:"video_path,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	RestartPending bool       `json:"restart_pending"`
}

// session is the live encoder plus the config that spawned it.
type session struct {
	id        string
	gen       uint64
	proc      Process
	cfg       StreamConfig
	audio     string
	startedAt time.Time
}
