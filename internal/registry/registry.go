// Package registry is the single authority for meeting state transitions.
// All other components mutate meetings, participants and the event log
// through it, so the invariants on status transitions are enforced in one
// place. Mutations on a given meeting are serialized by a per-meeting lock;
// different meetings proceed in parallel.
package registry

import (
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/stats"
	"github.com/npezzotti/go-meetsignal/internal/types"
)

// session is the per-meeting serialization unit. graceTimer runs between
// the last participant leaving and the meeting being marked ENDED.
type session struct {
	mu         sync.Mutex
	graceTimer *time.Timer
}

type Registry struct {
	log   *log.Logger
	db    database.MeetSignalRepository
	stats stats.StatsProvider
	grace time.Duration

	sessionsLock sync.Mutex
	sessions     map[string]*session
}

func NewRegistry(logger *log.Logger, db database.MeetSignalRepository, sp stats.StatsProvider, grace time.Duration) *Registry {
	return &Registry{
		log:      logger,
		db:       db,
		stats:    sp,
		grace:    grace,
		sessions: make(map[string]*session),
	}
}

func (r *Registry) session(meetingId string) *session {
	r.sessionsLock.Lock()
	defer r.sessionsLock.Unlock()

	s, ok := r.sessions[meetingId]
	if !ok {
		s = &session{}
		r.sessions[meetingId] = s
	}
	return s
}

// unloadSession drops the in-memory entry for a terminal meeting.
// Must be called with the session lock held.
func (r *Registry) unloadSession(meetingId string, s *session) {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}

	r.sessionsLock.Lock()
	delete(r.sessions, meetingId)
	r.sessionsLock.Unlock()
}

func newEvent(meetingId, eventType, userId, targetUserId string, metadata map[string]string) database.MeetingEvent {
	return database.MeetingEvent{
		Id:           uuid.NewString(),
		MeetingId:    meetingId,
		EventType:    eventType,
		UserId:       userId,
		TargetUserId: targetUserId,
		Metadata:     metadata,
		Timestamp:    time.Now().UTC(),
	}
}

type CreateMeetingParams struct {
	RoomId          string
	SubjectType     string
	SubjectId       string
	OrgId           string
	HostUserId      string
	MaxParticipants int
}

// CreateMeeting creates the meeting for a room, or returns the existing one
// when it has not reached a terminal state. A terminal meeting pins its
// roomId permanently, so reuse is a conflict.
func (r *Registry) CreateMeeting(params CreateMeetingParams) (database.Meeting, error) {
	existing, err := r.db.GetMeetingByRoomId(params.RoomId)
	if err == nil {
		if database.MeetingTerminal(existing.Status) {
			return database.Meeting{}, ErrRoomReused
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return database.Meeting{}, err
	}

	meetingId := uuid.NewString()
	meeting, err := r.db.CreateMeeting(database.CreateMeetingParams{
		Id:              meetingId,
		RoomId:          params.RoomId,
		SubjectType:     params.SubjectType,
		SubjectId:       params.SubjectId,
		OrgId:           params.OrgId,
		HostUserId:      params.HostUserId,
		MaxParticipants: params.MaxParticipants,
	}, newEvent(meetingId, database.EventMeetingCreated, params.HostUserId, "", nil))
	if database.IsUniqueViolation(err) {
		// another caller created the room's meeting first
		existing, ferr := r.db.GetMeetingByRoomId(params.RoomId)
		if ferr != nil {
			return database.Meeting{}, err
		}
		if database.MeetingTerminal(existing.Status) {
			return database.Meeting{}, ErrRoomReused
		}
		return existing, nil
	} else if err != nil {
		return database.Meeting{}, err
	}

	r.log.Printf("created meeting %q for room %q", meeting.Id, meeting.RoomId)
	return meeting, nil
}

type AdmitParams struct {
	MeetingId        string
	UserId           string
	UserName         string
	UserAvatar       string
	RequestModerator bool
}

// Admit adds a participant to a meeting, enforcing the lock and capacity
// rules. The moderator request is honored only when the server can verify
// eligibility: host identity or a stored moderator grant. A participant who
// is already JOINED gets their existing row back, which makes token renewal
// a no-op on state.
func (r *Registry) Admit(params AdmitParams) (database.Participant, error) {
	s := r.session(params.MeetingId)
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, err := r.getMeeting(params.MeetingId)
	if err != nil {
		return database.Participant{}, err
	}

	if database.MeetingTerminal(meeting.Status) {
		return database.Participant{}, ErrMeetingOver
	}

	if existing, err := r.db.GetJoinedParticipant(meeting.Id, params.UserId); err == nil {
		r.cancelGrace(s)
		return existing, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return database.Participant{}, err
	}

	if meeting.Locked && params.UserId != meeting.HostUserId {
		onRecord, err := r.db.HasParticipantRecord(meeting.Id, params.UserId)
		if err != nil {
			return database.Participant{}, err
		}
		if !onRecord {
			return database.Participant{}, ErrRoomLocked
		}
	}

	if meeting.MaxParticipants > 0 {
		joined, err := r.db.CountJoined(meeting.Id)
		if err != nil {
			return database.Participant{}, err
		}
		if joined >= meeting.MaxParticipants {
			return database.Participant{}, ErrRoomFull
		}
	}

	role, err := r.resolveRole(meeting, params.UserId, params.RequestModerator)
	if err != nil {
		return database.Participant{}, err
	}

	participant, err := r.db.CreateParticipant(database.CreateParticipantParams{
		Id:         uuid.NewString(),
		MeetingId:  meeting.Id,
		UserId:     params.UserId,
		UserName:   params.UserName,
		UserAvatar: params.UserAvatar,
		Role:       role,
	}, newEvent(meeting.Id, database.EventJoin, params.UserId, "", map[string]string{"role": role}))
	if err != nil {
		return database.Participant{}, err
	}

	if meeting.Status == database.MeetingWaiting {
		if err := r.db.ActivateMeeting(meeting.Id); err != nil {
			return database.Participant{}, err
		}
		r.stats.Incr(stats.ActiveMeetings)
		r.log.Printf("meeting %q is now active", meeting.Id)
	}

	r.cancelGrace(s)
	r.stats.Incr(stats.JoinedParticipants)
	r.log.Printf("user %q joined meeting %q as %s", params.UserId, meeting.Id, role)

	return participant, nil
}

// resolveRole determines the participant's true role. A client-asserted
// moderator flag is a request, never a grant.
func (r *Registry) resolveRole(meeting database.Meeting, userId string, requestModerator bool) (string, error) {
	if userId == meeting.HostUserId {
		return database.RoleHost, nil
	}

	if requestModerator {
		granted, err := r.db.HasModeratorGrant(meeting.RoomId, userId)
		if err != nil {
			return "", err
		}
		if granted {
			return database.RoleModerator, nil
		}
	}

	return database.RoleGuest, nil
}

// Depart removes a JOINED participant. reason must be ParticipantLeft or
// ParticipantKicked. A voluntary leave of a participant who already left,
// or of a meeting already over, is a no-op so retries and races with the
// sweeper are safe; a kick of a user who is not joined reports
// ErrParticipantNotFound. When the last participant leaves the grace timer
// is armed; the meeting ends only if nobody rejoins within the window.
func (r *Registry) Depart(meetingId, userId, reason, by, kickReason string) error {
	s := r.session(meetingId)
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, err := r.getMeeting(meetingId)
	if err != nil {
		return err
	}

	if database.MeetingTerminal(meeting.Status) {
		return nil
	}

	participant, err := r.db.GetJoinedParticipant(meetingId, userId)
	if errors.Is(err, sql.ErrNoRows) {
		if reason == database.ParticipantKicked {
			return ErrParticipantNotFound
		}
		return nil
	} else if err != nil {
		return err
	}

	eventType := database.EventLeave
	status := database.ParticipantLeft
	var kickedBy string
	if reason == database.ParticipantKicked {
		eventType = database.EventKick
		status = database.ParticipantKicked
		kickedBy = by
	}

	event := newEvent(meetingId, eventType, by, "", map[string]string{})
	if reason == database.ParticipantKicked {
		event.TargetUserId = userId
		if kickReason != "" {
			event.Metadata["reason"] = kickReason
		}
	} else {
		event.UserId = userId
	}

	if err := r.db.DepartParticipant(participant.Id, status, time.Now().UTC(), kickedBy, kickReason, event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	r.stats.Decr(stats.JoinedParticipants)
	r.log.Printf("user %q departed meeting %q (%s)", userId, meetingId, status)

	joined, err := r.db.CountJoined(meetingId)
	if err != nil {
		return err
	}
	if joined == 0 {
		r.armGrace(s, meetingId)
	}

	return nil
}

// End gracefully ends a meeting, departing any remaining participants
// as LEFT. Ending a terminal meeting is a no-op.
func (r *Registry) End(meetingId, by string) error {
	s := r.session(meetingId)
	s.mu.Lock()
	defer s.mu.Unlock()

	return r.endLocked(s, meetingId, by)
}

func (r *Registry) endLocked(s *session, meetingId, by string) error {
	meeting, err := r.getMeeting(meetingId)
	if err != nil {
		return err
	}

	if database.MeetingTerminal(meeting.Status) {
		return nil
	}

	departed, err := r.db.EndMeeting(meetingId, time.Now().UTC(), newEvent(meetingId, database.EventEnd, by, "", nil))
	if err != nil {
		return err
	}

	for i := 0; i < departed; i++ {
		r.stats.Decr(stats.JoinedParticipants)
	}
	if meeting.Status == database.MeetingActive {
		r.stats.Decr(stats.ActiveMeetings)
	}

	r.unloadSession(meetingId, s)
	r.log.Printf("meeting %q ended", meetingId)
	return nil
}

// Terminate force-ends a meeting regardless of participant count and marks
// every JOINED participant as KICKED. Terminating a terminal meeting is a
// no-op.
func (r *Registry) Terminate(meetingId, by, reason string) error {
	s := r.session(meetingId)
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, err := r.getMeeting(meetingId)
	if err != nil {
		return err
	}

	if database.MeetingTerminal(meeting.Status) {
		return nil
	}

	event := newEvent(meetingId, database.EventTerminate, by, "", nil)
	if reason != "" {
		event.Metadata = map[string]string{"reason": reason}
	}

	kicked, err := r.db.TerminateMeeting(meetingId, time.Now().UTC(), by, reason, event)
	if err != nil {
		return err
	}

	for i := 0; i < kicked; i++ {
		r.stats.Decr(stats.JoinedParticipants)
	}
	if meeting.Status == database.MeetingActive {
		r.stats.Decr(stats.ActiveMeetings)
	}

	r.unloadSession(meetingId, s)
	r.log.Printf("meeting %q terminated by %q", meetingId, by)
	return nil
}

// SetLock locks or unlocks admission to a meeting.
func (r *Registry) SetLock(meetingId string, locked bool, by string) error {
	s := r.session(meetingId)
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, err := r.getMeeting(meetingId)
	if err != nil {
		return err
	}

	if database.MeetingTerminal(meeting.Status) {
		return ErrMeetingOver
	}

	eventType := database.EventLock
	if !locked {
		eventType = database.EventUnlock
	}

	return r.db.SetMeetingLock(meetingId, locked, newEvent(meetingId, eventType, by, "", nil))
}

func (r *Registry) armGrace(s *session, meetingId string) {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
	}

	r.log.Printf("meeting %q is empty, ending in %s unless someone rejoins", meetingId, r.grace)
	s.graceTimer = time.AfterFunc(r.grace, func() {
		r.endIfStillEmpty(meetingId)
	})
}

func (r *Registry) cancelGrace(s *session) {
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

func (r *Registry) endIfStillEmpty(meetingId string) {
	s := r.session(meetingId)
	s.mu.Lock()
	defer s.mu.Unlock()

	meeting, err := r.getMeeting(meetingId)
	if err != nil {
		r.log.Printf("grace expiry for meeting %q: %v", meetingId, err)
		return
	}

	if database.MeetingTerminal(meeting.Status) {
		return
	}

	joined, err := r.db.CountJoined(meetingId)
	if err != nil {
		r.log.Printf("grace expiry for meeting %q: %v", meetingId, err)
		return
	}
	if joined > 0 {
		return
	}

	if err := r.endLocked(s, meetingId, ""); err != nil {
		r.log.Printf("grace expiry for meeting %q: %v", meetingId, err)
	}
}

func (r *Registry) getMeeting(meetingId string) (database.Meeting, error) {
	meeting, err := r.db.GetMeeting(meetingId)
	if errors.Is(err, sql.ErrNoRows) {
		return database.Meeting{}, ErrMeetingNotFound
	}
	return meeting, err
}

// Meeting returns the meeting by id.
func (r *Registry) Meeting(meetingId string) (database.Meeting, error) {
	return r.getMeeting(meetingId)
}

// MeetingByRoomId returns the meeting currently bound to a room.
func (r *Registry) MeetingByRoomId(roomId string) (database.Meeting, error) {
	meeting, err := r.db.GetMeetingByRoomId(roomId)
	if errors.Is(err, sql.ErrNoRows) {
		return database.Meeting{}, ErrMeetingNotFound
	}
	return meeting, err
}

// ActiveMeetings lists meetings that have not reached a terminal state.
func (r *Registry) ActiveMeetings() ([]database.Meeting, error) {
	return r.db.ListActiveMeetings()
}

// ActiveParticipants lists the currently JOINED participants of a meeting.
func (r *Registry) ActiveParticipants(meetingId string) ([]database.Participant, error) {
	return r.db.ListJoinedParticipants(meetingId)
}

// Participants lists every participant row of a meeting, including those
// who left or were kicked. History is preserved across rejoins.
func (r *Registry) Participants(meetingId string) ([]database.Participant, error) {
	return r.db.ListParticipants(meetingId)
}

// Events returns a page of the meeting's audit log ordered by event time.
func (r *Registry) Events(meetingId string, limit, offset int) ([]database.MeetingEvent, error) {
	return r.db.ListEvents(meetingId, limit, offset)
}

// Stats summarizes a meeting: live and lifetime participant counts,
// duration so far (or final duration once ended) and recording count.
func (r *Registry) Stats(meetingId string) (types.MeetingStats, error) {
	meeting, err := r.getMeeting(meetingId)
	if err != nil {
		return types.MeetingStats{}, err
	}

	joined, err := r.db.CountJoined(meetingId)
	if err != nil {
		return types.MeetingStats{}, err
	}

	participants, err := r.db.ListParticipants(meetingId)
	if err != nil {
		return types.MeetingStats{}, err
	}

	recordings, err := r.db.ListMeetingRecordings(meetingId)
	if err != nil {
		return types.MeetingStats{}, err
	}

	end := time.Now().UTC()
	if !meeting.EndedAt.IsZero() {
		end = meeting.EndedAt
	}

	return types.MeetingStats{
		MeetingId:          meeting.Id,
		RoomId:             meeting.RoomId,
		Status:             meeting.Status,
		ActiveParticipants: joined,
		TotalParticipants:  len(participants),
		DurationSeconds:    int(end.Sub(meeting.StartedAt).Seconds()),
		Recordings:         len(recordings),
		Locked:             meeting.Locked,
	}, nil
}

// IsModerator reports whether the user currently holds moderator privileges
// in the meeting: a JOINED row with role HOST or MODERATOR.
func (r *Registry) IsModerator(meetingId, userId string) (bool, error) {
	participant, err := r.db.GetJoinedParticipant(meetingId, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return participant.Role == database.RoleHost || participant.Role == database.RoleModerator, nil
}

// IsPlatformAdmin reports whether the user holds the platform-level admin
// capability. Primary authentication happens upstream; this only checks the
// asserted identity against stored capability records.
func (r *Registry) IsPlatformAdmin(userId string) (bool, error) {
	return r.db.IsPlatformAdmin(userId)
}
