package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	defaultTokenTTL           = 15 * time.Minute
	maxTokenTTL               = time.Hour
	defaultGracePeriod        = 30 * time.Second
	defaultHeartbeatInterval  = 10 * time.Second
	defaultHeartbeatTimeout   = 40 * time.Second
	defaultStopConfirmTimeout = 30 * time.Second
)

// Options carries the raw values collected from flags and the environment.
// Zero-valued durations fall back to defaults.
type Options struct {
	ServerAddr         string
	DatabaseDSN        string
	SigningSecret      string
	AllowedOrigins     []string
	WebsocketURL       string
	MediaBaseURL       string
	RecorderBaseURL    string
	ICEServers         []string
	TokenTTL           time.Duration
	GracePeriod        time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration
	StopConfirmTimeout time.Duration
}

type Config struct {
	ServerAddr         string
	DatabaseDSN        string
	SigningKey         []byte
	AllowedOrigins     []string
	WebsocketURL       string
	MediaBaseURL       string
	RecorderBaseURL    string
	ICEServers         []string
	TokenTTL           time.Duration
	GracePeriod        time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration
	StopConfirmTimeout time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if opts.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(opts.SigningSecret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	tokenTTL := opts.TokenTTL
	if tokenTTL == 0 {
		tokenTTL = defaultTokenTTL
	}
	if tokenTTL < time.Minute || tokenTTL > maxTokenTTL {
		return nil, fmt.Errorf("token TTL must be between 1m and %s, got %s", maxTokenTTL, tokenTTL)
	}

	gracePeriod := opts.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = defaultGracePeriod
	}

	heartbeatInterval := opts.HeartbeatInterval
	if heartbeatInterval == 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}

	heartbeatTimeout := opts.HeartbeatTimeout
	if heartbeatTimeout == 0 {
		heartbeatTimeout = defaultHeartbeatTimeout
	}
	if heartbeatTimeout <= heartbeatInterval {
		return nil, fmt.Errorf("heartbeat timeout %s must exceed sweep interval %s", heartbeatTimeout, heartbeatInterval)
	}

	stopConfirmTimeout := opts.StopConfirmTimeout
	if stopConfirmTimeout == 0 {
		stopConfirmTimeout = defaultStopConfirmTimeout
	}

	return &Config{
		ServerAddr:         opts.ServerAddr,
		DatabaseDSN:        opts.DatabaseDSN,
		SigningKey:         signingKey,
		AllowedOrigins:     opts.AllowedOrigins,
		WebsocketURL:       opts.WebsocketURL,
		MediaBaseURL:       opts.MediaBaseURL,
		RecorderBaseURL:    opts.RecorderBaseURL,
		ICEServers:         opts.ICEServers,
		TokenTTL:           tokenTTL,
		GracePeriod:        gracePeriod,
		HeartbeatInterval:  heartbeatInterval,
		HeartbeatTimeout:   heartbeatTimeout,
		StopConfirmTimeout: stopConfirmTimeout,
	}, nil
}
