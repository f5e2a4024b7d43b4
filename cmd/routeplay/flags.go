package main

import (
	"net/http"
	"time"
)

// Flag structs decouple cobra from command logic for testing.

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

type PlayFlags struct {
	Speed         float64
	From          time.Duration
	FrameInterval time.Duration
	Quiet         bool
}

type SimulateFlags struct {
	Speed    float64
	From     time.Duration
	Step     time.Duration
	Progress bool // include line-progress events
	JSON     bool // one JSON event per line
	MaxSteps int
}

type InspectFlags struct {
	JSON bool
}

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
	TLSDev     bool

	// called once the API is listening; tests use it to learn the address
	onReady func(*http.Server)
}

// RemoteFlags holds the daemon connection for remote commands.
type RemoteFlags struct {
	APIUrl     string
	APITimeout time.Duration
	Token      string
}

type TokenFlags struct {
	Secret  string
	Subject string
	TTL     time.Duration
}

type TemplateCreateFlags struct {
	Type   string
	Name   string
	Output string
	Legs   int
	LegMS  int64
	Force  bool
}
