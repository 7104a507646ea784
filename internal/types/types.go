package types

import (
	"time"
)

type User struct {
	Id     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email,omitempty"`
}

type Meeting struct {
	Id              string     `json:"meeting_id"`
	RoomId          string     `json:"room_id"`
	SubjectType     string     `json:"subject_type"`
	SubjectId       string     `json:"subject_id,omitempty"`
	OrgId           string     `json:"org_id,omitempty"`
	HostUserId      string     `json:"host_user_id"`
	Status          string     `json:"status"`
	MaxParticipants int        `json:"max_participants,omitempty"`
	Locked          bool       `json:"locked"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`

	Participants []Participant `json:"participants,omitempty"`
	Recordings   []Recording   `json:"recordings,omitempty"`
	Events       []Event       `json:"events,omitempty"`
}

type Participant struct {
	Id         string     `json:"id"`
	UserId     string     `json:"user_id"`
	UserName   string     `json:"user_name,omitempty"`
	UserAvatar string     `json:"user_avatar,omitempty"`
	Role       string     `json:"role"`
	Status     string     `json:"status"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
	KickedBy   string     `json:"kicked_by,omitempty"`
	KickReason string     `json:"kick_reason,omitempty"`
}

type Recording struct {
	Id              string     `json:"recording_id"`
	MeetingId       string     `json:"meeting_id"`
	SessionId       string     `json:"session_id"`
	Status          string     `json:"status"`
	StartedBy       string     `json:"started_by"`
	StoppedBy       string     `json:"stopped_by,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	StorageLocation string     `json:"storage_location,omitempty"`
	FileSize        int64      `json:"file_size,omitempty"`
	Error           string     `json:"error,omitempty"`
}

type Event struct {
	Id           string            `json:"id"`
	EventType    string            `json:"event_type"`
	UserId       string            `json:"user_id,omitempty"`
	TargetUserId string            `json:"target_user_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	IngestedAt   time.Time         `json:"ingested_at"`
}

type MeetingStats struct {
	MeetingId          string `json:"meeting_id"`
	RoomId             string `json:"room_id"`
	Status             string `json:"status"`
	ActiveParticipants int    `json:"active_participants"`
	TotalParticipants  int    `json:"total_participants"`
	DurationSeconds    int    `json:"duration_seconds"`
	Recordings         int    `json:"recordings"`
	Locked             bool   `json:"locked"`
}
