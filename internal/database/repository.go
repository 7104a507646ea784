package database

import "time"

// MeetSignalRepository is the persistence boundary for the control plane.
// Compound methods perform the state transition and the audit event append
// in a single transaction so the event log cannot diverge from state.
type MeetSignalRepository interface {
	Ping() error

	CreateMeeting(params CreateMeetingParams, event MeetingEvent) (Meeting, error)
	GetMeeting(meetingId string) (Meeting, error)
	GetMeetingByRoomId(roomId string) (Meeting, error)
	ListActiveMeetings() ([]Meeting, error)
	ActivateMeeting(meetingId string) error
	SetMeetingLock(meetingId string, locked bool, event MeetingEvent) error
	EndMeeting(meetingId string, endedAt time.Time, event MeetingEvent) (int, error)
	TerminateMeeting(meetingId string, endedAt time.Time, kickedBy, reason string, event MeetingEvent) (int, error)

	CreateParticipant(params CreateParticipantParams, event MeetingEvent) (Participant, error)
	GetJoinedParticipant(meetingId, userId string) (Participant, error)
	HasParticipantRecord(meetingId, userId string) (bool, error)
	CountJoined(meetingId string) (int, error)
	ListJoinedParticipants(meetingId string) ([]Participant, error)
	ListParticipants(meetingId string) ([]Participant, error)
	DepartParticipant(participantId, status string, leftAt time.Time, kickedBy, kickReason string, event MeetingEvent) error

	HasModeratorGrant(roomId, userId string) (bool, error)
	IsPlatformAdmin(userId string) (bool, error)

	CreateRecording(params CreateRecordingParams, event MeetingEvent) (Recording, error)
	GetRecording(recordingId string) (Recording, error)
	GetRecordingBySessionId(sessionId string) (Recording, error)
	GetActiveRecording(meetingId string) (Recording, error)
	UpdateRecording(rec Recording, event *MeetingEvent) error
	ListMeetingRecordings(meetingId string) ([]Recording, error)

	AppendEvent(event MeetingEvent) error
	ListEvents(meetingId string, limit, offset int) ([]MeetingEvent, error)
}
