package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/npezzotti/go-meetsignal/internal/api"
	"github.com/npezzotti/go-meetsignal/internal/config"
	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/liveness"
	"github.com/npezzotti/go-meetsignal/internal/media"
	"github.com/npezzotti/go-meetsignal/internal/moderation"
	"github.com/npezzotti/go-meetsignal/internal/recording"
	"github.com/npezzotti/go-meetsignal/internal/registry"
	"github.com/npezzotti/go-meetsignal/internal/stats"
	"github.com/npezzotti/go-meetsignal/internal/token"
	"github.com/oklog/run"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr               string
	dsn                string
	signingSecret      string
	websocketURL       string
	mediaBaseURL       string
	recorderBaseURL    string
	allowedOrigins     stringSliceFlag
	iceServers         stringSliceFlag
	tokenTTL           time.Duration
	gracePeriod        time.Duration
	heartbeatInterval  time.Duration
	heartbeatTimeout   time.Duration
	stopConfirmTimeout time.Duration
)

// envOr reads an environment variable with a fallback, so flags keep
// working while deployments configure through the environment.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// optional .env for local development; deployments set real env vars
	godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("MEETSIGNAL_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("MEETSIGNAL_DSN", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"), "database connection string")
	flag.StringVar(&signingSecret, "signing-secret", envOr("MEETSIGNAL_SIGNING_SECRET", ""), "base64 encoded token signing secret")
	flag.StringVar(&websocketURL, "websocket-url", envOr("MEETSIGNAL_WEBSOCKET_URL", ""), "websocket URL handed to clients for signaling")
	flag.StringVar(&mediaBaseURL, "media-url", envOr("MEETSIGNAL_MEDIA_URL", ""), "base URL of the media plane control API")
	flag.StringVar(&recorderBaseURL, "recorder-url", envOr("MEETSIGNAL_RECORDER_URL", ""), "base URL of the recorder service")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Var(&iceServers, "ice-servers", "comma-separated list of ICE server URLs handed to clients")
	flag.DurationVar(&tokenTTL, "token-ttl", 0, "signaling token lifetime (default 15m, max 1h)")
	flag.DurationVar(&gracePeriod, "grace-period", 0, "empty-meeting grace window before auto-end (default 30s)")
	flag.DurationVar(&heartbeatInterval, "heartbeat-interval", 0, "liveness sweep interval (default 10s)")
	flag.DurationVar(&heartbeatTimeout, "heartbeat-timeout", 0, "liveness staleness timeout (default 40s)")
	flag.DurationVar(&stopConfirmTimeout, "stop-confirm-timeout", 0, "recorder stop confirmation timeout (default 30s)")
	flag.Parse()

	logger := log.New(os.Stderr, "[meetsignal] ", log.LstdFlags)

	cfg, err := config.NewConfig(config.Options{
		ServerAddr:         addr,
		DatabaseDSN:        dsn,
		SigningSecret:      signingSecret,
		AllowedOrigins:     allowedOrigins,
		WebsocketURL:       websocketURL,
		MediaBaseURL:       mediaBaseURL,
		RecorderBaseURL:    recorderBaseURL,
		ICEServers:         iceServers,
		TokenTTL:           tokenTTL,
		GracePeriod:        gracePeriod,
		HeartbeatInterval:  heartbeatInterval,
		HeartbeatTimeout:   heartbeatTimeout,
		StopConfirmTimeout: stopConfirmTimeout,
	})
	if err != nil {
		logger.Fatal("config:", err)
	}

	dbConn, err := database.NewPgMeetSignalRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	reg := registry.NewRegistry(logger, dbConn, statsUpdater, cfg.GracePeriod)
	gateway := moderation.NewGateway(logger, reg, media.NewClient(cfg.MediaBaseURL))
	orchestrator := recording.NewOrchestrator(logger, dbConn,
		recording.NewHTTPRecorderClient(cfg.RecorderBaseURL), statsUpdater, cfg.StopConfirmTimeout)
	monitor := liveness.NewMonitor(logger, reg, statsUpdater, cfg.HeartbeatInterval, cfg.HeartbeatTimeout)
	issuer := token.NewIssuer(cfg.SigningKey, cfg.TokenTTL)

	srv := api.NewMeetSignalApp(mux, logger, reg, gateway, orchestrator, monitor, dbConn, issuer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	var g run.Group

	g.Add(func() error {
		monitor.Run()
		return nil
	}, func(error) {
		monitor.Shutdown()
	})

	g.Add(func() error {
		return srv.Start()
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Println("HTTP server shutdown:", err)
		}
	})

	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	if err := g.Run(); err != nil {
		var sigErr run.SignalError
		if errors.As(err, &sigErr) {
			logger.Printf("received signal: %s\n", sigErr.Signal)
		} else {
			logger.Println("server:", err)
		}
	}

	logger.Println("shutdown complete")
}
