package database

import "time"

const (
	MeetingWaiting    = "WAITING"
	MeetingActive     = "ACTIVE"
	MeetingEnded      = "ENDED"
	MeetingTerminated = "TERMINATED"
)

const (
	RoleHost      = "HOST"
	RoleModerator = "MODERATOR"
	RoleGuest     = "GUEST"
)

const (
	ParticipantJoined = "JOINED"
	ParticipantLeft   = "LEFT"
	ParticipantKicked = "KICKED"
)

const (
	RecordingPending = "PENDING"
	RecordingActive  = "RECORDING"
	RecordingStopped = "STOPPED"
	RecordingFailed  = "FAILED"
)

const (
	EventMeetingCreated = "MEETING_CREATED"
	EventJoin           = "JOIN"
	EventLeave          = "LEAVE"
	EventKick           = "KICK"
	EventEnd            = "END"
	EventTerminate      = "TERMINATE"
	EventLock           = "LOCK"
	EventUnlock         = "UNLOCK"
	EventRecordingStart = "RECORDING_START"
	EventRecordingStop  = "RECORDING_STOP"
	EventRecordingFail  = "RECORDING_FAIL"
)

// MeetingTerminal reports whether status is one of the terminal meeting
// states. Terminal meetings are immutable.
func MeetingTerminal(status string) bool {
	return status == MeetingEnded || status == MeetingTerminated
}

// RecordingTerminal reports whether a recording status is final.
func RecordingTerminal(status string) bool {
	return status == RecordingStopped || status == RecordingFailed
}

type Meeting struct {
	Id              string
	RoomId          string
	SubjectType     string
	SubjectId       string
	OrgId           string
	HostUserId      string
	Status          string
	MaxParticipants int
	Locked          bool
	StartedAt       time.Time
	EndedAt         time.Time
}

type Participant struct {
	Id         string
	MeetingId  string
	UserId     string
	UserName   string
	UserAvatar string
	Role       string
	Status     string
	JoinedAt   time.Time
	LeftAt     time.Time
	KickedBy   string
	KickReason string
}

type Recording struct {
	Id              string
	MeetingId       string
	SessionId       string
	Status          string
	StartedBy       string
	StoppedBy       string
	StartedAt       time.Time
	StoppedAt       time.Time
	DurationSeconds int
	StorageLocation string
	FileSize        int64
	Error           string
}

type MeetingEvent struct {
	Id           string
	MeetingId    string
	EventType    string
	UserId       string
	TargetUserId string
	Metadata     map[string]string
	// Timestamp is the time the event occurred; IngestedAt is the time it
	// was written. They may differ for out-of-order webhook delivery.
	Timestamp  time.Time
	IngestedAt time.Time
}

type CreateMeetingParams struct {
	Id              string
	RoomId          string
	SubjectType     string
	SubjectId       string
	OrgId           string
	HostUserId      string
	MaxParticipants int
}

type CreateParticipantParams struct {
	Id         string
	MeetingId  string
	UserId     string
	UserName   string
	UserAvatar string
	Role       string
}

type CreateRecordingParams struct {
	Id        string
	MeetingId string
	SessionId string
	Status    string
	StartedBy string
}
