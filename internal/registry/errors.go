package registry

import "errors"

var (
	// ErrMeetingNotFound is returned when no meeting exists for the given id.
	ErrMeetingNotFound = errors.New("meeting not found")
	// ErrMeetingOver is returned when an operation requires a meeting that
	// has not yet reached a terminal state.
	ErrMeetingOver = errors.New("meeting has ended")
	// ErrRoomLocked is returned when a locked meeting rejects a new admission.
	ErrRoomLocked = errors.New("room is locked")
	// ErrRoomFull is returned when admission would exceed maxParticipants.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomReused is returned when a new meeting is requested for a room
	// whose meeting already reached a terminal state.
	ErrRoomReused = errors.New("room already used by an ended meeting")
	// ErrParticipantNotFound is returned when a participant lookup misses.
	ErrParticipantNotFound = errors.New("participant not found")
)
