// Package config holds the environment driven defaults of the server and client commands.
// Command line flags take precedence over the values loaded here.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Server configures the list service process.
type Server struct {
	RPCPort      int           `env:"SHARED_LIST_RPC_PORT"       envDefault:"2412"`
	HTTPAddr     string        `env:"SHARED_LIST_HTTP_ADDR"      envDefault:":4000"`
	StoreDSN     string        `env:"SHARED_LIST_STORE_DSN"      envDefault:"file://./shared-list.db"`
	BroadcastDSN string        `env:"SHARED_LIST_BROADCAST_DSN"  envDefault:"memory://"`
	Topic        string        `env:"SHARED_LIST_TOPIC"          envDefault:"userslist"`
	MovePolicy   string        `env:"SHARED_LIST_MOVE_POLICY"    envDefault:"overwrite"`
	QueueSize    int           `env:"SHARED_LIST_QUEUE_SIZE"     envDefault:"50"`
	OpTimeout    time.Duration `env:"SHARED_LIST_OP_TIMEOUT"     envDefault:"5s"`
}

// Client configures a list mirror process.
type Client struct {
	ServerURL     string        `env:"SHARED_LIST_SERVER_URL"     envDefault:"127.0.0.1:2412"`
	EventsURL     string        `env:"SHARED_LIST_EVENTS_URL"     envDefault:"ws://127.0.0.1:4000/events"`
	Topic         string        `env:"SHARED_LIST_TOPIC"          envDefault:"userslist"`
	DeviceId      string        `env:"SHARED_LIST_DEVICE_ID"`
	UpdatesPeriod time.Duration `env:"SHARED_LIST_UPDATES_PERIOD" envDefault:"1s"`
	PollPeriod    time.Duration `env:"SHARED_LIST_POLL_PERIOD"    envDefault:"2s"`
}

// LoadServer parses the server configuration from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// LoadClient parses the client configuration from the environment.
// A random device id is generated when none is set.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DeviceId == "" {
		cfg.DeviceId = NewDeviceId()
	}

	return cfg, nil
}

// NewDeviceId returns a random device id.
func NewDeviceId() string {
	return uuid.NewString()
}
