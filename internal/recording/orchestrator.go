// Package recording orchestrates recorder sessions for meetings. The
// recorder itself is an external service driven by asynchronous commands;
// all authoritative state lives in the recordings table and advances only
// through webhook reports folded in by a pure reducer.
package recording

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/stats"
)

var (
	ErrMeetingNotFound   = errors.New("meeting not found")
	ErrMeetingOver       = errors.New("meeting is over")
	ErrRecordingConflict = errors.New("a recording session is already active")
	ErrRecordingNotFound = errors.New("recording not found")
)

type Orchestrator struct {
	log            *log.Logger
	db             database.MeetSignalRepository
	recorder       RecorderClient
	stats          stats.StatsProvider
	confirmTimeout time.Duration

	mu         sync.Mutex
	stopTimers map[string]*time.Timer
	locks      map[string]*sync.Mutex
}

func NewOrchestrator(logger *log.Logger, db database.MeetSignalRepository, recorder RecorderClient, sp stats.StatsProvider, confirmTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:            logger,
		db:             db,
		recorder:       recorder,
		stats:          sp,
		confirmTimeout: confirmTimeout,
		stopTimers:     make(map[string]*time.Timer),
		locks:          make(map[string]*sync.Mutex),
	}
}

// meetingLock returns the mutex serializing recording transitions for a
// meeting. Check-then-insert on the active session and read-modify-write
// on a stored row must not interleave.
func (o *Orchestrator) meetingLock(meetingId string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, ok := o.locks[meetingId]
	if !ok {
		l = &sync.Mutex{}
		o.locks[meetingId] = l
	}
	return l
}

// Start begins a recorder session for a meeting. Only one PENDING or
// RECORDING session may exist per meeting at a time. The recorder command
// is issued asynchronously; the session stays PENDING until the recorder's
// started report arrives.
func (o *Orchestrator) Start(ctx context.Context, meetingId, requestedBy, sessionId string) (database.Recording, error) {
	meeting, err := o.db.GetMeeting(meetingId)
	if errors.Is(err, sql.ErrNoRows) {
		return database.Recording{}, ErrMeetingNotFound
	} else if err != nil {
		return database.Recording{}, err
	}

	if database.MeetingTerminal(meeting.Status) {
		return database.Recording{}, ErrMeetingOver
	}

	l := o.meetingLock(meetingId)
	l.Lock()
	defer l.Unlock()

	if _, err := o.db.GetActiveRecording(meetingId); err == nil {
		return database.Recording{}, ErrRecordingConflict
	} else if !errors.Is(err, sql.ErrNoRows) {
		return database.Recording{}, err
	}

	if sessionId == "" {
		sessionId = fmt.Sprintf("rec-%s-%s", meetingId, uuid.NewString()[:8])
	}

	event := database.MeetingEvent{
		Id:        uuid.NewString(),
		MeetingId: meetingId,
		EventType: database.EventRecordingStart,
		UserId:    requestedBy,
		Metadata:  map[string]string{"session_id": sessionId},
		Timestamp: time.Now().UTC(),
	}

	rec, err := o.db.CreateRecording(database.CreateRecordingParams{
		Id:        uuid.NewString(),
		MeetingId: meetingId,
		SessionId: sessionId,
		Status:    database.RecordingPending,
		StartedBy: requestedBy,
	}, event)
	if database.IsUniqueViolation(err) {
		// another replica slipped in between the check and the insert
		return database.Recording{}, ErrRecordingConflict
	} else if err != nil {
		return database.Recording{}, err
	}

	o.stats.Incr(stats.ActiveRecordings)
	o.log.Printf("recording session %q requested for meeting %q", sessionId, meetingId)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := o.recorder.StartRecording(ctx, meeting.RoomId, sessionId); err != nil {
			o.log.Printf("recorder start for session %q: %v", sessionId, err)
			o.failSession(sessionId, fmt.Sprintf("recorder start failed: %v", err))
		}
	}()

	return rec, nil
}

// Stop asks the recorder to stop a session. The session only becomes
// STOPPED when the recorder confirms through the webhook; if no report
// arrives within the confirmation window the session is marked FAILED.
func (o *Orchestrator) Stop(ctx context.Context, meetingId, requestedBy string) (database.Recording, error) {
	l := o.meetingLock(meetingId)
	l.Lock()
	defer l.Unlock()

	rec, err := o.db.GetActiveRecording(meetingId)
	if errors.Is(err, sql.ErrNoRows) {
		return database.Recording{}, ErrRecordingNotFound
	} else if err != nil {
		return database.Recording{}, err
	}

	rec.StoppedBy = requestedBy
	if err := o.db.UpdateRecording(rec, nil); err != nil {
		return database.Recording{}, err
	}

	o.armConfirmTimer(rec.SessionId)
	o.log.Printf("stop requested for recording session %q", rec.SessionId)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := o.recorder.StopRecording(ctx, rec.SessionId); err != nil {
			o.log.Printf("recorder stop for session %q: %v", rec.SessionId, err)
		}
	}()

	return rec, nil
}

// HandleWebhook folds a recorder status report into the stored session.
// Duplicate deliveries, replays after a terminal state and reports for
// timed-out sessions all reduce to no-ops.
func (o *Orchestrator) HandleWebhook(ev WebhookEvent) (database.Recording, error) {
	rec, err := o.db.GetRecordingBySessionId(ev.SessionId)
	if errors.Is(err, sql.ErrNoRows) {
		return database.Recording{}, ErrRecordingNotFound
	} else if err != nil {
		return database.Recording{}, err
	}

	l := o.meetingLock(rec.MeetingId)
	l.Lock()
	defer l.Unlock()

	// re-read under the lock: a stop request or another delivery may have
	// advanced the session since the first read
	rec, err = o.db.GetRecordingBySessionId(ev.SessionId)
	if err != nil {
		return database.Recording{}, err
	}

	updated, changed := apply(rec, ev, time.Now().UTC())
	if !changed {
		return rec, nil
	}

	var event *database.MeetingEvent
	switch updated.Status {
	case database.RecordingStopped:
		event = o.newEvent(updated, database.EventRecordingStop, map[string]string{
			"session_id": updated.SessionId,
			"duration":   strconv.Itoa(updated.DurationSeconds),
		})
	case database.RecordingFailed:
		event = o.newEvent(updated, database.EventRecordingFail, map[string]string{
			"session_id": updated.SessionId,
			"error":      updated.Error,
		})
	}

	if err := o.db.UpdateRecording(updated, event); err != nil {
		return database.Recording{}, err
	}

	if database.RecordingTerminal(updated.Status) {
		o.cancelConfirmTimer(updated.SessionId)
		o.stats.Decr(stats.ActiveRecordings)
	}

	o.log.Printf("recording session %q is now %s", updated.SessionId, updated.Status)
	return updated, nil
}

// Upload records a client-side recording. There is no recorder session to
// wait on, so the row is created directly in its final state.
func (o *Orchestrator) Upload(meetingId, userId, storageLocation string, fileSize int64, durationSeconds int) (database.Recording, error) {
	if _, err := o.db.GetMeeting(meetingId); errors.Is(err, sql.ErrNoRows) {
		return database.Recording{}, ErrMeetingNotFound
	} else if err != nil {
		return database.Recording{}, err
	}

	sessionId := fmt.Sprintf("upload-%s", uuid.NewString())
	event := database.MeetingEvent{
		Id:        uuid.NewString(),
		MeetingId: meetingId,
		EventType: database.EventRecordingStop,
		UserId:    userId,
		Metadata:  map[string]string{"session_id": sessionId, "upload": "true"},
		Timestamp: time.Now().UTC(),
	}

	rec, err := o.db.CreateRecording(database.CreateRecordingParams{
		Id:        uuid.NewString(),
		MeetingId: meetingId,
		SessionId: sessionId,
		Status:    database.RecordingStopped,
		StartedBy: userId,
	}, event)
	if err != nil {
		return database.Recording{}, err
	}

	rec.StoppedBy = userId
	rec.StoppedAt = time.Now().UTC()
	rec.StorageLocation = storageLocation
	rec.FileSize = fileSize
	rec.DurationSeconds = durationSeconds
	if err := o.db.UpdateRecording(rec, nil); err != nil {
		return database.Recording{}, err
	}

	o.log.Printf("client recording uploaded for meeting %q (%d bytes)", meetingId, fileSize)
	return rec, nil
}

// Recording returns a recording by id.
func (o *Orchestrator) Recording(recordingId string) (database.Recording, error) {
	rec, err := o.db.GetRecording(recordingId)
	if errors.Is(err, sql.ErrNoRows) {
		return database.Recording{}, ErrRecordingNotFound
	}
	return rec, err
}

// MeetingRecordings lists every recording of a meeting, newest first.
func (o *Orchestrator) MeetingRecordings(meetingId string) ([]database.Recording, error) {
	return o.db.ListMeetingRecordings(meetingId)
}

func (o *Orchestrator) newEvent(rec database.Recording, eventType string, metadata map[string]string) *database.MeetingEvent {
	return &database.MeetingEvent{
		Id:        uuid.NewString(),
		MeetingId: rec.MeetingId,
		EventType: eventType,
		UserId:    rec.StoppedBy,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	}
}

func (o *Orchestrator) armConfirmTimer(sessionId string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.stopTimers[sessionId]; ok {
		t.Stop()
	}
	o.stopTimers[sessionId] = time.AfterFunc(o.confirmTimeout, func() {
		o.failSession(sessionId, "recorder did not confirm stop in time")
	})
}

func (o *Orchestrator) cancelConfirmTimer(sessionId string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if t, ok := o.stopTimers[sessionId]; ok {
		t.Stop()
		delete(o.stopTimers, sessionId)
	}
}

// failSession marks a session FAILED through the same reducer path as a
// webhook, so a session that already reached a terminal state is left
// untouched.
func (o *Orchestrator) failSession(sessionId, reason string) {
	if _, err := o.HandleWebhook(WebhookEvent{
		SessionId: sessionId,
		Status:    WebhookFailed,
		Error:     reason,
	}); err != nil {
		o.log.Printf("failing recording session %q: %v", sessionId, err)
	}
}
