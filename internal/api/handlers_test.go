package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/go-meetsignal/internal/config"
	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/liveness"
	"github.com/npezzotti/go-meetsignal/internal/media"
	"github.com/npezzotti/go-meetsignal/internal/moderation"
	"github.com/npezzotti/go-meetsignal/internal/recording"
	"github.com/npezzotti/go-meetsignal/internal/registry"
	"github.com/npezzotti/go-meetsignal/internal/stats"
	"github.com/npezzotti/go-meetsignal/internal/testutil"
	"github.com/npezzotti/go-meetsignal/internal/token"
	"github.com/npezzotti/go-meetsignal/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef")

func newTestApp(t *testing.T, repo database.MeetSignalRepository, notifier *media.MockNotifier, recorder *recording.MockRecorderClient) *MeetSignalApp {
	t.Helper()

	logger := testutil.TestLogger(t)
	reg := registry.NewRegistry(logger, repo, stats.NopStats{}, time.Second)
	mod := moderation.NewGateway(logger, reg, notifier)
	rec := recording.NewOrchestrator(logger, repo, recorder, stats.NopStats{}, time.Second)
	mon := liveness.NewMonitor(logger, reg, stats.NopStats{}, time.Minute, time.Minute)
	issuer := token.NewIssuer(testSigningKey, 15*time.Minute)

	cfg := &config.Config{
		ServerAddr:     ":0",
		AllowedOrigins: []string{"*"},
		WebsocketURL:   "wss://signal.example.com/ws",
		ICEServers:     []string{"stun:stun.example.com:3478"},
		TokenTTL:       15 * time.Minute,
		GracePeriod:    30 * time.Second,
	}

	return NewMeetSignalApp(http.NewServeMux(), logger, reg, mod, rec, mon, repo, issuer, cfg)
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	assert.NoError(t, json.NewEncoder(buf).Encode(v), "expected no error encoding body")
	return buf
}

func Test_healthCheck(t *testing.T) {
	tcases := []struct {
		name    string
		mockErr error
	}{
		{
			name:    "successful health check",
			mockErr: nil,
		},
		{
			name:    "failed health check",
			mockErr: errors.New("db error"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockMeetSignalRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("Ping").Return(tc.mockErr).Once()

			app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			app.healthCheck(rr, req)

			if tc.mockErr != nil {
				assert.Equal(t, http.StatusInternalServerError, rr.Code, "expected status code to be 500")
			} else {
				assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
				assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
			}
		})
	}
}

func Test_routing(t *testing.T) {
	mockRepo := &database.MockMeetSignalRepository{}
	defer mockRepo.AssertExpectations(t)

	active := database.Meeting{Id: "m1", RoomId: "room-1", Status: database.MeetingActive}
	mockRepo.On("GetMeetingByRoomId", "room-1").Return(active, nil).Once()
	mockRepo.On("GetMeeting", "m1").Return(active, nil).Once()
	mockRepo.On("ListJoinedParticipants", "m1").Return([]database.Participant{}, nil).Once()

	app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})

	// the by-room lookup and the by-meeting subresources must both resolve
	rr := httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/rooms/room-1/meeting", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "expected the by-room lookup to resolve")

	rr = httptest.NewRecorder()
	app.mux.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/meet/m1/participants", nil))
	assert.Equal(t, http.StatusOK, rr.Code, "expected the participants route to resolve")
}

func Test_createRoom(t *testing.T) {
	t.Run("creates a room with its meeting bound to the host", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		created := database.Meeting{Id: "m1", RoomId: "EoGKUXPHgz", HostUserId: "h1", Status: database.MeetingWaiting}
		mockRepo.On("GetMeetingByRoomId", "EoGKUXPHgz").Return(database.Meeting{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateMeeting", mock.MatchedBy(func(p database.CreateMeetingParams) bool {
			return p.RoomId == "EoGKUXPHgz" && p.HostUserId == "h1"
		}), mock.Anything).Return(created, nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		app.generateShortId = func() (string, error) {
			return "EoGKUXPHgz", nil
		}

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", jsonBody(t, CreateRoomRequest{HostUserId: "h1"}))
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

		var resp CreateRoomResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected no error decoding response")
		assert.Equal(t, "EoGKUXPHgz", resp.RoomId, "unexpected room id")
		assert.Equal(t, "m1", resp.MeetingId, "unexpected meeting id")
		assert.Equal(t, []string{"stun:stun.example.com:3478"}, resp.IceServers, "unexpected ICE servers")
		assert.Equal(t, 900, resp.Policy.TokenTTLSeconds, "unexpected token ttl policy")
	})

	t.Run("missing host user id", func(t *testing.T) {
		app := newTestApp(t, &database.MockMeetSignalRepository{}, &media.MockNotifier{}, &recording.MockRecorderClient{})

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms", jsonBody(t, CreateRoomRequest{}))
		app.createRoom(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})
}

func Test_issueToken(t *testing.T) {
	t.Run("first user becomes host and gets a moderator token", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		waiting := database.Meeting{Id: "m1", RoomId: "room-1", HostUserId: "h1", Status: database.MeetingWaiting}
		mockRepo.On("GetMeetingByRoomId", "room-1").Return(database.Meeting{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateMeeting", mock.Anything, mock.Anything).Return(waiting, nil).Once()
		mockRepo.On("GetMeeting", "m1").Return(waiting, nil).Once()
		mockRepo.On("GetJoinedParticipant", "m1", "h1").Return(database.Participant{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateParticipant", mock.MatchedBy(func(p database.CreateParticipantParams) bool {
			return p.Role == database.RoleHost
		}), mock.Anything).Return(database.Participant{Id: "p1", UserId: "h1", Role: database.RoleHost}, nil).Once()
		mockRepo.On("ActivateMeeting", "m1").Return(nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/meet/token", jsonBody(t, TokenRequest{
			RoomId:      "room-1",
			User:        types.User{Id: "h1", Name: "Alice"},
			SubjectType: "chat",
		}))
		app.issueToken(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var resp TokenResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected no error decoding response")
		assert.Equal(t, "m1", resp.MeetingId, "unexpected meeting id")
		assert.Equal(t, database.RoleHost, resp.Role, "expected host role")
		assert.Equal(t, "wss://signal.example.com/ws", resp.WebsocketURL, "unexpected websocket url")

		issuer := token.NewIssuer(testSigningKey, 15*time.Minute)
		claims, err := issuer.Verify(resp.Token)
		assert.NoError(t, err, "expected a verifiable token")
		assert.Equal(t, "room-1", claims.RoomId, "unexpected room claim")
		assert.True(t, claims.Moderator, "host token must carry the moderator flag")
	})

	t.Run("first caller into a pre-created room does not become host", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		// room-1 was created through createRoom with h1 as host
		waiting := database.Meeting{Id: "m1", RoomId: "room-1", HostUserId: "h1", Status: database.MeetingWaiting}
		mockRepo.On("GetMeetingByRoomId", "room-1").Return(waiting, nil).Once()
		mockRepo.On("GetMeeting", "m1").Return(waiting, nil).Once()
		mockRepo.On("GetJoinedParticipant", "m1", "g1").Return(database.Participant{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateParticipant", mock.MatchedBy(func(p database.CreateParticipantParams) bool {
			return p.Role == database.RoleGuest
		}), mock.Anything).Return(database.Participant{Id: "p1", UserId: "g1", Role: database.RoleGuest}, nil).Once()
		mockRepo.On("ActivateMeeting", "m1").Return(nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/meet/token", jsonBody(t, TokenRequest{
			RoomId: "room-1",
			User:   types.User{Id: "g1"},
		}))
		app.issueToken(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var resp TokenResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected no error decoding response")
		assert.Equal(t, database.RoleGuest, resp.Role, "expected guest role for a non-host caller")

		issuer := token.NewIssuer(testSigningKey, 15*time.Minute)
		claims, err := issuer.Verify(resp.Token)
		assert.NoError(t, err, "expected a verifiable token")
		assert.False(t, claims.Moderator, "non-host token must not carry the moderator flag")
	})

	t.Run("client-asserted moderator flag is not honored", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		active := database.Meeting{Id: "m1", RoomId: "room-1", HostUserId: "h1", Status: database.MeetingActive}
		mockRepo.On("GetMeetingByRoomId", "room-1").Return(active, nil).Once()
		mockRepo.On("GetMeeting", "m1").Return(active, nil).Once()
		mockRepo.On("GetJoinedParticipant", "m1", "g1").Return(database.Participant{}, sql.ErrNoRows).Once()
		mockRepo.On("HasModeratorGrant", "room-1", "g1").Return(false, nil).Once()
		mockRepo.On("CreateParticipant", mock.MatchedBy(func(p database.CreateParticipantParams) bool {
			return p.Role == database.RoleGuest
		}), mock.Anything).Return(database.Participant{Id: "p2", UserId: "g1", Role: database.RoleGuest}, nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/meet/token", jsonBody(t, TokenRequest{
			RoomId:      "room-1",
			User:        types.User{Id: "g1"},
			IsModerator: true,
		}))
		app.issueToken(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var resp TokenResponse
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected no error decoding response")
		assert.Equal(t, database.RoleGuest, resp.Role, "expected guest role")

		issuer := token.NewIssuer(testSigningKey, 15*time.Minute)
		claims, err := issuer.Verify(resp.Token)
		assert.NoError(t, err, "expected a verifiable token")
		assert.False(t, claims.Moderator, "guest token must not carry the moderator flag")
	})

	t.Run("locked meeting rejects new users", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		locked := database.Meeting{Id: "m1", RoomId: "room-1", HostUserId: "h1", Status: database.MeetingActive, Locked: true}
		mockRepo.On("GetMeetingByRoomId", "room-1").Return(locked, nil).Once()
		mockRepo.On("GetMeeting", "m1").Return(locked, nil).Once()
		mockRepo.On("GetJoinedParticipant", "m1", "g1").Return(database.Participant{}, sql.ErrNoRows).Once()
		mockRepo.On("HasParticipantRecord", "m1", "g1").Return(false, nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/meet/token", jsonBody(t, TokenRequest{
			RoomId: "room-1",
			User:   types.User{Id: "g1"},
		}))
		app.issueToken(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	})

	t.Run("room of a finished meeting conflicts", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		ended := database.Meeting{Id: "m1", RoomId: "room-1", Status: database.MeetingEnded}
		mockRepo.On("GetMeetingByRoomId", "room-1").Return(ended, nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/meet/token", jsonBody(t, TokenRequest{
			RoomId: "room-1",
			User:   types.User{Id: "g1"},
		}))
		app.issueToken(rr, req)

		assert.Equal(t, http.StatusConflict, rr.Code, "expected status code to be 409")
	})

	t.Run("missing fields", func(t *testing.T) {
		app := newTestApp(t, &database.MockMeetSignalRepository{}, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/meet/token", jsonBody(t, TokenRequest{RoomId: "room-1"}))
		app.issueToken(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code, "expected status code to be 400")
	})
}

func Test_heartbeat(t *testing.T) {
	t.Run("accepts a heartbeat", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		active := database.Meeting{Id: "m1", RoomId: "room-1", Status: database.MeetingActive}
		mockRepo.On("GetMeetingByRoomId", "room-1").Return(active, nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/room-1/heartbeat", jsonBody(t, HeartbeatRequest{UserId: "u1"}))
		req.SetPathValue("roomId", "room-1")
		app.heartbeat(rr, req)

		assert.Equal(t, http.StatusAccepted, rr.Code, "expected status code to be 202")
	})

	t.Run("unknown room", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetMeetingByRoomId", "nope").Return(database.Meeting{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/rooms/nope/heartbeat", jsonBody(t, HeartbeatRequest{UserId: "u1"}))
		req.SetPathValue("roomId", "nope")
		app.heartbeat(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})
}

func Test_adminMiddleware(t *testing.T) {
	tcases := []struct {
		name         string
		header       string
		isAdmin      bool
		expectedCode int
	}{
		{
			name:         "missing header",
			header:       "",
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:         "not a platform admin",
			header:       "u1",
			isAdmin:      false,
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "platform admin",
			header:       "admin",
			isAdmin:      true,
			expectedCode: http.StatusOK,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockMeetSignalRepository{}
			defer mockRepo.AssertExpectations(t)

			if tc.header != "" {
				mockRepo.On("IsPlatformAdmin", tc.header).Return(tc.isAdmin, nil).Once()
			}

			app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
			handler := app.adminMiddleware(func(w http.ResponseWriter, r *http.Request) {
				userId, ok := AdminUser(r.Context())
				assert.True(t, ok, "expected admin user in context")
				assert.Equal(t, tc.header, userId, "unexpected admin user")
				w.WriteHeader(http.StatusOK)
			})

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/admin/meetings", nil)
			if tc.header != "" {
				req.Header.Set(adminUserHeader, tc.header)
			}
			handler(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "unexpected status code")
		})
	}
}

func Test_kickParticipant(t *testing.T) {
	t.Run("admin kicks a participant", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)
		mockNotifier := &media.MockNotifier{}
		defer mockNotifier.AssertExpectations(t)

		active := database.Meeting{Id: "m1", RoomId: "room-1", HostUserId: "h1", Status: database.MeetingActive}
		mockRepo.On("IsPlatformAdmin", "admin").Return(true, nil)
		mockRepo.On("GetJoinedParticipant", "m1", "admin").Return(database.Participant{}, sql.ErrNoRows).Once()
		mockRepo.On("GetMeeting", "m1").Return(active, nil)
		mockRepo.On("GetJoinedParticipant", "m1", "g1").
			Return(database.Participant{Id: "p1", UserId: "g1", Status: database.ParticipantJoined}, nil).Once()
		mockRepo.On("DepartParticipant", "p1", database.ParticipantKicked, mock.Anything, "admin", "spam", mock.Anything).
			Return(nil).Once()
		mockRepo.On("CountJoined", "m1").Return(1, nil).Once()
		mockNotifier.On("ForceDisconnect", mock.Anything, "room-1", "g1").Return(nil).Once()

		app := newTestApp(t, mockRepo, mockNotifier, &recording.MockRecorderClient{})
		handler := app.adminMiddleware(app.kickParticipant)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/admin/meetings/m1/kick",
			jsonBody(t, KickRequest{TargetUserId: "g1", Reason: "spam"}))
		req.Header.Set(adminUserHeader, "admin")
		req.SetPathValue("meetingId", "m1")
		handler(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")
	})
}

func Test_recordingWebhook(t *testing.T) {
	t.Run("stopped report then duplicate delivery", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		live := database.Recording{Id: "r1", MeetingId: "m1", SessionId: "s1", Status: database.RecordingActive, StartedAt: time.Now().Add(-time.Minute)}
		stopped := live
		stopped.Status = database.RecordingStopped

		mockRepo.On("GetRecordingBySessionId", "s1").Return(live, nil).Twice()
		mockRepo.On("UpdateRecording", mock.MatchedBy(func(r database.Recording) bool {
			return r.Status == database.RecordingStopped
		}), mock.Anything).Return(nil).Once()
		mockRepo.On("GetRecordingBySessionId", "s1").Return(stopped, nil).Twice()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})

		body := recording.WebhookEvent{SessionId: "s1", Status: recording.WebhookStopped, FilePath: "s3://bucket/rec.mp4"}

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/recordings/webhook", jsonBody(t, body))
		app.recordingWebhook(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		// duplicate delivery reduces to a no-op with the same response
		rr = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/api/recordings/webhook", jsonBody(t, body))
		app.recordingWebhook(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

		var resp types.Recording
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected no error decoding response")
		assert.Equal(t, database.RecordingStopped, resp.Status, "expected STOPPED")
	})

	t.Run("unknown session", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetRecordingBySessionId", "nope").Return(database.Recording{}, sql.ErrNoRows).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/recordings/webhook",
			jsonBody(t, recording.WebhookEvent{SessionId: "nope", Status: recording.WebhookStopped}))
		app.recordingWebhook(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code, "expected status code to be 404")
	})
}

func Test_startRecording(t *testing.T) {
	t.Run("guest may not start a recording", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("GetJoinedParticipant", "m1", "g1").
			Return(database.Participant{Id: "p1", Role: database.RoleGuest, Status: database.ParticipantJoined}, nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/recordings/start",
			jsonBody(t, StartRecordingRequest{MeetingId: "m1", UserId: "g1"}))
		app.startRecording(rr, req)

		assert.Equal(t, http.StatusForbidden, rr.Code, "expected status code to be 403")
	})

	t.Run("moderator starts a recording", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRecorder := &recording.MockRecorderClient{}

		active := database.Meeting{Id: "m1", RoomId: "room-1", Status: database.MeetingActive}
		mockRepo.On("GetJoinedParticipant", "m1", "h1").
			Return(database.Participant{Id: "p1", Role: database.RoleHost, Status: database.ParticipantJoined}, nil).Once()
		mockRepo.On("GetMeeting", "m1").Return(active, nil).Once()
		mockRepo.On("GetActiveRecording", "m1").Return(database.Recording{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateRecording", mock.Anything, mock.Anything).
			Return(database.Recording{Id: "r1", MeetingId: "m1", SessionId: "s1", Status: database.RecordingPending}, nil).Once()
		mockRecorder.On("StartRecording", mock.Anything, "room-1", mock.Anything).Return(nil).Maybe()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, mockRecorder)
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/recordings/start",
			jsonBody(t, StartRecordingRequest{MeetingId: "m1", UserId: "h1"}))
		app.startRecording(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code, "expected status code to be 201")

		var resp types.Recording
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected no error decoding response")
		assert.Equal(t, database.RecordingPending, resp.Status, "expected PENDING")
	})
}

func Test_leaveMeeting(t *testing.T) {
	t.Run("participant leaves", func(t *testing.T) {
		mockRepo := &database.MockMeetSignalRepository{}
		defer mockRepo.AssertExpectations(t)

		active := database.Meeting{Id: "m1", RoomId: "room-1", Status: database.MeetingActive}
		mockRepo.On("GetMeeting", "m1").Return(active, nil).Once()
		mockRepo.On("GetJoinedParticipant", "m1", "u1").
			Return(database.Participant{Id: "p1", UserId: "u1", Status: database.ParticipantJoined}, nil).Once()
		mockRepo.On("DepartParticipant", "p1", database.ParticipantLeft, mock.Anything, "", "", mock.Anything).
			Return(nil).Once()
		mockRepo.On("CountJoined", "m1").Return(1, nil).Once()

		app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/meet/m1/leave", jsonBody(t, LeaveRequest{UserId: "u1"}))
		req.SetPathValue("meetingId", "m1")
		app.leaveMeeting(rr, req)

		assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")
	})
}

func Test_getMeetingStats(t *testing.T) {
	mockRepo := &database.MockMeetSignalRepository{}
	defer mockRepo.AssertExpectations(t)

	started := time.Now().Add(-10 * time.Minute).UTC()
	active := database.Meeting{Id: "m1", RoomId: "room-1", Status: database.MeetingActive, StartedAt: started}
	mockRepo.On("GetMeeting", "m1").Return(active, nil).Once()
	mockRepo.On("CountJoined", "m1").Return(2, nil).Once()
	mockRepo.On("ListParticipants", "m1").Return([]database.Participant{{Id: "p1"}, {Id: "p2"}, {Id: "p3"}}, nil).Once()
	mockRepo.On("ListMeetingRecordings", "m1").Return([]database.Recording{{Id: "r1"}}, nil).Once()

	app := newTestApp(t, mockRepo, &media.MockNotifier{}, &recording.MockRecorderClient{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/meet/m1/stats", nil)
	req.SetPathValue("meetingId", "m1")
	app.getMeetingStats(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")

	var resp types.MeetingStats
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected no error decoding response")
	assert.Equal(t, 2, resp.ActiveParticipants, "unexpected active participant count")
	assert.Equal(t, 3, resp.TotalParticipants, "unexpected total participant count")
	assert.Equal(t, 1, resp.Recordings, "unexpected recording count")
	assert.GreaterOrEqual(t, resp.DurationSeconds, 599, "unexpected duration")
}
