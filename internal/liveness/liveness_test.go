package liveness

import (
	"database/sql"
	"testing"
	"time"

	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/registry"
	"github.com/npezzotti/go-meetsignal/internal/stats"
	"github.com/npezzotti/go-meetsignal/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestMonitor(t *testing.T, repo database.MeetSignalRepository, interval, timeout time.Duration) *Monitor {
	t.Helper()
	reg := registry.NewRegistry(testutil.TestLogger(t), repo, stats.NopStats{}, time.Second)
	return NewMonitor(testutil.TestLogger(t), reg, stats.NopStats{}, interval, timeout)
}

func TestSweepDepartsStaleParticipants(t *testing.T) {
	mockRepo := &database.MockMeetSignalRepository{}

	active := database.Meeting{Id: "m1", RoomId: "room-1", Status: database.MeetingActive}
	departed := make(chan struct{})
	mockRepo.On("GetMeeting", "m1").Return(active, nil)
	mockRepo.On("GetJoinedParticipant", "m1", "u1").
		Return(database.Participant{Id: "p1", UserId: "u1", Status: database.ParticipantJoined}, nil).Once()
	mockRepo.On("DepartParticipant", "p1", database.ParticipantLeft, mock.Anything, "", "",
		mock.MatchedBy(func(e database.MeetingEvent) bool {
			return e.EventType == database.EventLeave && e.UserId == "u1"
		})).Return(nil).Once().Run(func(mock.Arguments) { close(departed) })
	mockRepo.On("CountJoined", "m1").Return(1, nil)

	m := newTestMonitor(t, mockRepo, 10*time.Millisecond, 20*time.Millisecond)
	m.Heartbeat("m1", "u1")

	go m.Run()
	defer m.Shutdown()

	select {
	case <-departed:
	case <-time.After(time.Second):
		t.Fatal("expected the stale participant to be departed")
	}

	// the entry is purged after one departure, no repeated attempts
	time.Sleep(50 * time.Millisecond)
	mockRepo.AssertNumberOfCalls(t, "DepartParticipant", 1)
}

func TestFreshHeartbeatsAreNotSwept(t *testing.T) {
	mockRepo := &database.MockMeetSignalRepository{}

	m := newTestMonitor(t, mockRepo, 10*time.Millisecond, time.Minute)
	m.Heartbeat("m1", "u1")

	go m.Run()
	defer m.Shutdown()

	time.Sleep(60 * time.Millisecond)
	mockRepo.AssertNotCalled(t, "DepartParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestForget(t *testing.T) {
	mockRepo := &database.MockMeetSignalRepository{}

	m := newTestMonitor(t, mockRepo, 10*time.Millisecond, 20*time.Millisecond)
	m.Heartbeat("m1", "u1")
	m.Forget("m1", "u1")

	go m.Run()
	defer m.Shutdown()

	time.Sleep(60 * time.Millisecond)
	mockRepo.AssertNotCalled(t, "DepartParticipant", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSweepRetriesAfterDepartError(t *testing.T) {
	mockRepo := &database.MockMeetSignalRepository{}
	defer mockRepo.AssertExpectations(t)

	active := database.Meeting{Id: "m1", RoomId: "room-1", Status: database.MeetingActive}
	departed := make(chan struct{})

	// transient failure on the first attempt; a later sweep departs the user
	mockRepo.On("GetMeeting", "m1").Return(database.Meeting{}, assert.AnError).Once()
	mockRepo.On("GetMeeting", "m1").Return(active, nil)
	mockRepo.On("GetJoinedParticipant", "m1", "u1").
		Return(database.Participant{Id: "p1", UserId: "u1", Status: database.ParticipantJoined}, nil).Once()
	mockRepo.On("DepartParticipant", "p1", database.ParticipantLeft, mock.Anything, "", "", mock.Anything).
		Return(nil).Once().Run(func(mock.Arguments) { close(departed) })
	mockRepo.On("CountJoined", "m1").Return(1, nil)

	m := newTestMonitor(t, mockRepo, 10*time.Millisecond, 20*time.Millisecond)
	m.Heartbeat("m1", "u1")

	go m.Run()
	defer m.Shutdown()

	select {
	case <-departed:
	case <-time.After(time.Second):
		t.Fatal("expected a later sweep to retry the departure")
	}
}

func TestSweepDropsVanishedMeetings(t *testing.T) {
	mockRepo := &database.MockMeetSignalRepository{}
	defer mockRepo.AssertExpectations(t)

	// meeting row is gone for good; no point retrying
	mockRepo.On("GetMeeting", "m1").Return(database.Meeting{}, sql.ErrNoRows).Once()

	m := newTestMonitor(t, mockRepo, 10*time.Millisecond, 20*time.Millisecond)
	m.Heartbeat("m1", "u1")

	go m.Run()
	defer m.Shutdown()

	time.Sleep(100 * time.Millisecond)
	mockRepo.AssertNumberOfCalls(t, "GetMeeting", 1)
}
