package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/recording"
	"github.com/npezzotti/go-meetsignal/internal/registry"
	"github.com/npezzotti/go-meetsignal/internal/types"
)

type CreateRoomRequest struct {
	HostUserId      string `json:"host_user_id"`
	SubjectType     string `json:"subject_type"`
	SubjectId       string `json:"subject_id"`
	OrgId           string `json:"org_id"`
	MaxParticipants int    `json:"max_participants"`
}

type RoomPolicy struct {
	TokenTTLSeconds    int `json:"token_ttl_seconds"`
	GracePeriodSeconds int `json:"grace_period_seconds"`
}

type CreateRoomResponse struct {
	RoomId     string     `json:"room_id"`
	MeetingId  string     `json:"meeting_id"`
	IceServers []string   `json:"ice_servers,omitempty"`
	Policy     RoomPolicy `json:"policy"`
}

type TokenRequest struct {
	RoomId          string     `json:"room_id"`
	User            types.User `json:"user"`
	IsModerator     bool       `json:"is_moderator"`
	SubjectType     string     `json:"subject_type"`
	SubjectId       string     `json:"subject_id"`
	OrgId           string     `json:"org_id"`
	MaxParticipants int        `json:"max_participants"`
}

type TokenResponse struct {
	Token        string    `json:"token"`
	RoomId       string    `json:"room_id"`
	MeetingId    string    `json:"meeting_id"`
	Role         string    `json:"role"`
	WebsocketURL string    `json:"websocket_url,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	IceServers   []string  `json:"ice_servers,omitempty"`
}

type HeartbeatRequest struct {
	UserId string `json:"user_id"`
}

type LeaveRequest struct {
	UserId string `json:"user_id"`
}

type LockRequest struct {
	UserId string `json:"user_id"`
	Locked bool   `json:"locked"`
}

type EndRequest struct {
	UserId string `json:"user_id"`
}

type TerminateRequest struct {
	Reason string `json:"reason"`
}

type KickRequest struct {
	TargetUserId string `json:"target_user_id"`
	Reason       string `json:"reason"`
}

type StartRecordingRequest struct {
	MeetingId string `json:"meeting_id"`
	UserId    string `json:"user_id"`
	SessionId string `json:"session_id"`
}

type StopRecordingRequest struct {
	UserId string `json:"user_id"`
}

type UploadRecordingRequest struct {
	MeetingId       string `json:"meeting_id"`
	UserId          string `json:"user_id"`
	StorageLocation string `json:"storage_location"`
	FileSize        int64  `json:"file_size"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (s *MeetSignalApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// createRoom allocates a room id and creates its meeting up front, binding
// the host identity. Whoever joins later joins as a guest unless they hold
// a moderator grant.
func (s *MeetSignalApp) createRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.HostUserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meeting, err := s.reg.CreateMeeting(registry.CreateMeetingParams{
		RoomId:          sid,
		SubjectType:     req.SubjectType,
		SubjectId:       req.SubjectId,
		OrgId:           req.OrgId,
		HostUserId:      req.HostUserId,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, CreateRoomResponse{
		RoomId:     sid,
		MeetingId:  meeting.Id,
		IceServers: s.cfg.ICEServers,
		Policy: RoomPolicy{
			TokenTTLSeconds:    int(s.cfg.TokenTTL.Seconds()),
			GracePeriodSeconds: int(s.cfg.GracePeriod.Seconds()),
		},
	})
}

// issueToken admits a user to a room's meeting and returns a signed
// signaling token. A room created through createRoom already has its
// meeting and host bound; for an ad-hoc room the meeting is created here
// and the first caller becomes the host.
func (s *MeetSignalApp) issueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.RoomId == "" || req.User.Id == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meeting, err := s.reg.CreateMeeting(registry.CreateMeetingParams{
		RoomId:          req.RoomId,
		SubjectType:     req.SubjectType,
		SubjectId:       req.SubjectId,
		OrgId:           req.OrgId,
		HostUserId:      req.User.Id,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participant, err := s.reg.Admit(registry.AdmitParams{
		MeetingId:        meeting.Id,
		UserId:           req.User.Id,
		UserName:         req.User.Name,
		UserAvatar:       req.User.Avatar,
		RequestModerator: req.IsModerator,
	})
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	moderator := participant.Role == database.RoleHost || participant.Role == database.RoleModerator
	signed, expiresAt, err := s.issuer.Issue(meeting.RoomId, req.User.Id, req.User.Name, participant.Role, moderator)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// seed liveness so a client that joins and immediately goes silent
	// is still swept
	s.monitor.Heartbeat(meeting.Id, req.User.Id)

	s.writeJson(w, http.StatusOK, TokenResponse{
		Token:        signed,
		RoomId:       meeting.RoomId,
		MeetingId:    meeting.Id,
		Role:         participant.Role,
		WebsocketURL: s.cfg.WebsocketURL,
		ExpiresAt:    expiresAt,
		IceServers:   s.cfg.ICEServers,
	})
}

func (s *MeetSignalApp) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meeting, err := s.reg.MeetingByRoomId(r.PathValue("roomId"))
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.monitor.Heartbeat(meeting.Id, req.UserId)
	s.writeJson(w, http.StatusAccepted, nil)
}

func (s *MeetSignalApp) leaveMeeting(w http.ResponseWriter, r *http.Request) {
	var req LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meetingId := r.PathValue("meetingId")
	if err := s.reg.Depart(meetingId, req.UserId, database.ParticipantLeft, "", ""); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.monitor.Forget(meetingId, req.UserId)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *MeetSignalApp) lockMeeting(w http.ResponseWriter, r *http.Request) {
	var req LockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.mod.SetLock(r.PathValue("meetingId"), req.UserId, req.Locked); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *MeetSignalApp) endMeeting(w http.ResponseWriter, r *http.Request) {
	var req EndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.mod.End(r.Context(), r.PathValue("meetingId"), req.UserId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *MeetSignalApp) getMeeting(w http.ResponseWriter, r *http.Request) {
	meeting, err := s.reg.Meeting(r.PathValue("meetingId"))
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toMeeting(meeting))
}

func (s *MeetSignalApp) getMeetingByRoom(w http.ResponseWriter, r *http.Request) {
	meeting, err := s.reg.MeetingByRoomId(r.PathValue("roomId"))
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toMeeting(meeting))
}

func (s *MeetSignalApp) getParticipants(w http.ResponseWriter, r *http.Request) {
	meetingId := r.PathValue("meetingId")
	if _, err := s.reg.Meeting(meetingId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participants, err := s.reg.ActiveParticipants(meetingId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Participant, 0, len(participants))
	for _, p := range participants {
		resp = append(resp, toParticipant(p))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *MeetSignalApp) getMeetingStats(w http.ResponseWriter, r *http.Request) {
	meetingStats, err := s.reg.Stats(r.PathValue("meetingId"))
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, meetingStats)
}

func (s *MeetSignalApp) getEvents(w http.ResponseWriter, r *http.Request) {
	meetingId := r.PathValue("meetingId")
	if _, err := s.reg.Meeting(meetingId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit, offset := 100, 0
	var err error
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	events, err := s.reg.Events(meetingId, limit, offset)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Event, 0, len(events))
	for _, e := range events {
		resp = append(resp, toEvent(e))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *MeetSignalApp) listActiveMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.reg.ActiveMeetings()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Meeting, 0, len(meetings))
	for _, m := range meetings {
		resp = append(resp, toMeeting(m))
	}

	s.writeJson(w, http.StatusOK, resp)
}

// getMeetingDetail returns a meeting with its full participant roster,
// recordings and audit log for the admin console.
func (s *MeetSignalApp) getMeetingDetail(w http.ResponseWriter, r *http.Request) {
	meetingId := r.PathValue("meetingId")

	meeting, err := s.reg.Meeting(meetingId)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participants, err := s.reg.Participants(meetingId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	recordings, err := s.rec.MeetingRecordings(meetingId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	events, err := s.reg.Events(meetingId, 1000, 0)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := toMeeting(meeting)
	for _, p := range participants {
		resp.Participants = append(resp.Participants, toParticipant(p))
	}
	for _, rec := range recordings {
		resp.Recordings = append(resp.Recordings, toRecording(rec))
	}
	for _, e := range events {
		resp.Events = append(resp.Events, toEvent(e))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *MeetSignalApp) terminateMeeting(w http.ResponseWriter, r *http.Request) {
	adminId, ok := AdminUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req TerminateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.mod.Terminate(r.Context(), r.PathValue("meetingId"), adminId, req.Reason); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *MeetSignalApp) kickParticipant(w http.ResponseWriter, r *http.Request) {
	adminId, ok := AdminUser(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req KickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetUserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	meetingId := r.PathValue("meetingId")
	if err := s.mod.Kick(r.Context(), meetingId, adminId, req.TargetUserId, req.Reason); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.monitor.Forget(meetingId, req.TargetUserId)
	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *MeetSignalApp) startRecording(w http.ResponseWriter, r *http.Request) {
	var req StartRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MeetingId == "" || req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp := s.requireModerator(req.MeetingId, req.UserId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rec, err := s.rec.Start(r.Context(), req.MeetingId, req.UserId, req.SessionId)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toRecording(rec))
}

func (s *MeetSignalApp) stopRecording(w http.ResponseWriter, r *http.Request) {
	var req StopRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rec, err := s.rec.Recording(r.PathValue("recordingId"))
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if errResp := s.requireModerator(rec.MeetingId, req.UserId); errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rec, err = s.rec.Stop(r.Context(), rec.MeetingId, req.UserId)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusAccepted, toRecording(rec))
}

// recordingWebhook ingests recorder status reports. Processing is
// idempotent, so the recorder may deliver at-least-once.
func (s *MeetSignalApp) recordingWebhook(w http.ResponseWriter, r *http.Request) {
	var ev recording.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.SessionId == "" || ev.Status == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rec, err := s.rec.HandleWebhook(ev)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRecording(rec))
}

func (s *MeetSignalApp) uploadRecording(w http.ResponseWriter, r *http.Request) {
	var req UploadRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.MeetingId == "" || req.UserId == "" || req.StorageLocation == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rec, err := s.rec.Upload(req.MeetingId, req.UserId, req.StorageLocation, req.FileSize, req.DurationSeconds)
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, toRecording(rec))
}

func (s *MeetSignalApp) getRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.rec.Recording(r.PathValue("recordingId"))
	if err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, toRecording(rec))
}

func (s *MeetSignalApp) listMeetingRecordings(w http.ResponseWriter, r *http.Request) {
	meetingId := r.PathValue("meetingId")
	if _, err := s.reg.Meeting(meetingId); err != nil {
		errResp := fromDomainError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	recordings, err := s.rec.MeetingRecordings(meetingId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := make([]types.Recording, 0, len(recordings))
	for _, rec := range recordings {
		resp = append(resp, toRecording(rec))
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *MeetSignalApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check failed: %v", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *MeetSignalApp) requireModerator(meetingId, userId string) *ApiError {
	isMod, err := s.reg.IsModerator(meetingId, userId)
	if err != nil {
		return NewInternalServerError(err)
	}
	if !isMod {
		return NewForbiddenError()
	}
	return nil
}

func toMeeting(m database.Meeting) types.Meeting {
	meeting := types.Meeting{
		Id:              m.Id,
		RoomId:          m.RoomId,
		SubjectType:     m.SubjectType,
		SubjectId:       m.SubjectId,
		OrgId:           m.OrgId,
		HostUserId:      m.HostUserId,
		Status:          m.Status,
		MaxParticipants: m.MaxParticipants,
		Locked:          m.Locked,
		StartedAt:       m.StartedAt,
	}
	if !m.EndedAt.IsZero() {
		endedAt := m.EndedAt
		meeting.EndedAt = &endedAt
		meeting.DurationSeconds = int(m.EndedAt.Sub(m.StartedAt).Seconds())
	}
	return meeting
}

func toParticipant(p database.Participant) types.Participant {
	participant := types.Participant{
		Id:         p.Id,
		UserId:     p.UserId,
		UserName:   p.UserName,
		UserAvatar: p.UserAvatar,
		Role:       p.Role,
		Status:     p.Status,
		JoinedAt:   p.JoinedAt,
		KickedBy:   p.KickedBy,
		KickReason: p.KickReason,
	}
	if !p.LeftAt.IsZero() {
		leftAt := p.LeftAt
		participant.LeftAt = &leftAt
	}
	return participant
}

func toRecording(rec database.Recording) types.Recording {
	recResp := types.Recording{
		Id:              rec.Id,
		MeetingId:       rec.MeetingId,
		SessionId:       rec.SessionId,
		Status:          rec.Status,
		StartedBy:       rec.StartedBy,
		StoppedBy:       rec.StoppedBy,
		StartedAt:       rec.StartedAt,
		DurationSeconds: rec.DurationSeconds,
		StorageLocation: rec.StorageLocation,
		FileSize:        rec.FileSize,
		Error:           rec.Error,
	}
	if !rec.StoppedAt.IsZero() {
		stoppedAt := rec.StoppedAt
		recResp.StoppedAt = &stoppedAt
	}
	return recResp
}

func toEvent(e database.MeetingEvent) types.Event {
	return types.Event{
		Id:           e.Id,
		EventType:    e.EventType,
		UserId:       e.UserId,
		TargetUserId: e.TargetUserId,
		Metadata:     e.Metadata,
		Timestamp:    e.Timestamp,
		IngestedAt:   e.IngestedAt,
	}
}
