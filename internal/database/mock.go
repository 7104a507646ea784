package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockMeetSignalRepository struct {
	mock.Mock
}

func (m *MockMeetSignalRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockMeetSignalRepository) CreateMeeting(params CreateMeetingParams, event MeetingEvent) (Meeting, error) {
	args := m.Called(params, event)
	return args.Get(0).(Meeting), args.Error(1)
}
func (m *MockMeetSignalRepository) GetMeeting(meetingId string) (Meeting, error) {
	args := m.Called(meetingId)
	return args.Get(0).(Meeting), args.Error(1)
}
func (m *MockMeetSignalRepository) GetMeetingByRoomId(roomId string) (Meeting, error) {
	args := m.Called(roomId)
	return args.Get(0).(Meeting), args.Error(1)
}
func (m *MockMeetSignalRepository) ListActiveMeetings() ([]Meeting, error) {
	args := m.Called()
	return args.Get(0).([]Meeting), args.Error(1)
}
func (m *MockMeetSignalRepository) ActivateMeeting(meetingId string) error {
	args := m.Called(meetingId)
	return args.Error(0)
}
func (m *MockMeetSignalRepository) SetMeetingLock(meetingId string, locked bool, event MeetingEvent) error {
	args := m.Called(meetingId, locked, event)
	return args.Error(0)
}
func (m *MockMeetSignalRepository) EndMeeting(meetingId string, endedAt time.Time, event MeetingEvent) (int, error) {
	args := m.Called(meetingId, endedAt, event)
	return args.Int(0), args.Error(1)
}
func (m *MockMeetSignalRepository) TerminateMeeting(meetingId string, endedAt time.Time, kickedBy, reason string, event MeetingEvent) (int, error) {
	args := m.Called(meetingId, endedAt, kickedBy, reason, event)
	return args.Int(0), args.Error(1)
}
func (m *MockMeetSignalRepository) CreateParticipant(params CreateParticipantParams, event MeetingEvent) (Participant, error) {
	args := m.Called(params, event)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockMeetSignalRepository) GetJoinedParticipant(meetingId, userId string) (Participant, error) {
	args := m.Called(meetingId, userId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockMeetSignalRepository) HasParticipantRecord(meetingId, userId string) (bool, error) {
	args := m.Called(meetingId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockMeetSignalRepository) CountJoined(meetingId string) (int, error) {
	args := m.Called(meetingId)
	return args.Int(0), args.Error(1)
}
func (m *MockMeetSignalRepository) ListJoinedParticipants(meetingId string) ([]Participant, error) {
	args := m.Called(meetingId)
	return args.Get(0).([]Participant), args.Error(1)
}
func (m *MockMeetSignalRepository) ListParticipants(meetingId string) ([]Participant, error) {
	args := m.Called(meetingId)
	return args.Get(0).([]Participant), args.Error(1)
}
func (m *MockMeetSignalRepository) DepartParticipant(participantId, status string, leftAt time.Time, kickedBy, kickReason string, event MeetingEvent) error {
	args := m.Called(participantId, status, leftAt, kickedBy, kickReason, event)
	return args.Error(0)
}
func (m *MockMeetSignalRepository) HasModeratorGrant(roomId, userId string) (bool, error) {
	args := m.Called(roomId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockMeetSignalRepository) IsPlatformAdmin(userId string) (bool, error) {
	args := m.Called(userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockMeetSignalRepository) CreateRecording(params CreateRecordingParams, event MeetingEvent) (Recording, error) {
	args := m.Called(params, event)
	return args.Get(0).(Recording), args.Error(1)
}
func (m *MockMeetSignalRepository) GetRecording(recordingId string) (Recording, error) {
	args := m.Called(recordingId)
	return args.Get(0).(Recording), args.Error(1)
}
func (m *MockMeetSignalRepository) GetRecordingBySessionId(sessionId string) (Recording, error) {
	args := m.Called(sessionId)
	return args.Get(0).(Recording), args.Error(1)
}
func (m *MockMeetSignalRepository) GetActiveRecording(meetingId string) (Recording, error) {
	args := m.Called(meetingId)
	return args.Get(0).(Recording), args.Error(1)
}
func (m *MockMeetSignalRepository) UpdateRecording(rec Recording, event *MeetingEvent) error {
	args := m.Called(rec, event)
	return args.Error(0)
}
func (m *MockMeetSignalRepository) ListMeetingRecordings(meetingId string) ([]Recording, error) {
	args := m.Called(meetingId)
	return args.Get(0).([]Recording), args.Error(1)
}
func (m *MockMeetSignalRepository) AppendEvent(event MeetingEvent) error {
	args := m.Called(event)
	return args.Error(0)
}
func (m *MockMeetSignalRepository) ListEvents(meetingId string, limit, offset int) ([]MeetingEvent, error) {
	args := m.Called(meetingId, limit, offset)
	return args.Get(0).([]MeetingEvent), args.Error(1)
}
