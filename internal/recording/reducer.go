package recording

import (
	"time"

	"github.com/npezzotti/go-meetsignal/internal/database"
)

const (
	WebhookStarted = "started"
	WebhookStopped = "stopped"
	WebhookFailed  = "failed"
)

// WebhookEvent is a status report from the recorder, keyed by the session
// id the recorder was started with.
type WebhookEvent struct {
	SessionId string `json:"session_id"`
	Status    string `json:"status"`
	FilePath  string `json:"file_path,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	Error     string `json:"error,omitempty"`
}

// apply folds a webhook event into a recording, returning the updated
// recording and whether anything changed. It is a pure function of its
// inputs, which makes duplicate and out-of-order deliveries trivially
// idempotent: terminal recordings never change, and replays of the event
// that made them terminal produce no further writes.
func apply(rec database.Recording, ev WebhookEvent, now time.Time) (database.Recording, bool) {
	if database.RecordingTerminal(rec.Status) {
		return rec, false
	}

	switch ev.Status {
	case WebhookStarted:
		if rec.Status != database.RecordingPending {
			return rec, false
		}
		rec.Status = database.RecordingActive
		rec.StartedAt = now
		return rec, true

	case WebhookStopped:
		// accepted from any non-terminal state: a stop can legitimately
		// arrive before the started report
		rec.Status = database.RecordingStopped
		rec.StoppedAt = now
		rec.StorageLocation = ev.FilePath
		rec.FileSize = ev.FileSize
		if !rec.StartedAt.IsZero() {
			rec.DurationSeconds = int(now.Sub(rec.StartedAt).Seconds())
		}
		return rec, true

	case WebhookFailed:
		rec.Status = database.RecordingFailed
		rec.StoppedAt = now
		rec.Error = ev.Error
		return rec, true
	}

	return rec, false
}
