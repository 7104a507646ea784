// Package api exposes the signaling control plane over HTTP. Primary
// authentication happens at the upstream gateway; request bodies and the
// admin identity header carry already-authenticated user ids.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-meetsignal/internal/config"
	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/liveness"
	"github.com/npezzotti/go-meetsignal/internal/moderation"
	"github.com/npezzotti/go-meetsignal/internal/recording"
	"github.com/npezzotti/go-meetsignal/internal/registry"
	"github.com/npezzotti/go-meetsignal/internal/token"
	"github.com/teris-io/shortid"
)

type MeetSignalApp struct {
	log     *log.Logger
	db      database.MeetSignalRepository
	reg     *registry.Registry
	mod     *moderation.Gateway
	rec     *recording.Orchestrator
	monitor *liveness.Monitor
	issuer  *token.Issuer
	cfg     *config.Config
	mux     *http.Server

	generateShortId func() (string, error)
}

func NewMeetSignalApp(mux *http.ServeMux, logger *log.Logger, reg *registry.Registry, mod *moderation.Gateway,
	rec *recording.Orchestrator, monitor *liveness.Monitor, db database.MeetSignalRepository,
	issuer *token.Issuer, cfg *config.Config) *MeetSignalApp {
	s := &MeetSignalApp{
		log:             logger,
		db:              db,
		reg:             reg,
		mod:             mod,
		rec:             rec,
		monitor:         monitor,
		issuer:          issuer,
		cfg:             cfg,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("POST /api/rooms", s.createRoom)
	mux.HandleFunc("POST /api/meet/token", s.issueToken)
	mux.HandleFunc("POST /api/rooms/{roomId}/heartbeat", s.heartbeat)
	mux.HandleFunc("GET /api/rooms/{roomId}/meeting", s.getMeetingByRoom)
	mux.HandleFunc("POST /api/meet/{meetingId}/leave", s.leaveMeeting)
	mux.HandleFunc("PUT /api/meet/{meetingId}/lock", s.lockMeeting)
	mux.HandleFunc("POST /api/meet/{meetingId}/end", s.endMeeting)
	mux.HandleFunc("GET /api/meet/{meetingId}", s.getMeeting)
	mux.HandleFunc("GET /api/meet/{meetingId}/participants", s.getParticipants)
	mux.HandleFunc("GET /api/meet/{meetingId}/stats", s.getMeetingStats)
	mux.HandleFunc("GET /api/sessions/{meetingId}/events", s.getEvents)

	mux.Handle("GET /api/admin/meetings", s.adminMiddleware(s.listActiveMeetings))
	mux.Handle("GET /api/admin/meetings/{meetingId}", s.adminMiddleware(s.getMeetingDetail))
	mux.Handle("POST /api/admin/meetings/{meetingId}/terminate", s.adminMiddleware(s.terminateMeeting))
	mux.Handle("POST /api/admin/meetings/{meetingId}/kick", s.adminMiddleware(s.kickParticipant))

	mux.HandleFunc("POST /api/recordings/start", s.startRecording)
	mux.HandleFunc("POST /api/recordings/{recordingId}/stop", s.stopRecording)
	mux.HandleFunc("POST /api/recordings/webhook", s.recordingWebhook)
	mux.HandleFunc("POST /api/recordings/upload", s.uploadRecording)
	mux.HandleFunc("GET /api/recordings/meeting/{meetingId}", s.listMeetingRecordings)
	mux.HandleFunc("GET /api/recordings/{recordingId}", s.getRecording)

	mux.HandleFunc("GET /healthz", s.healthCheck)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "X-Admin-User"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *MeetSignalApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *MeetSignalApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
