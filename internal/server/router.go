package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/routeplay/internal/bus"
	"github.com/loykin/routeplay/internal/config"
	"github.com/loykin/routeplay/internal/history"
	"github.com/loykin/routeplay/internal/scheduler"
	"github.com/loykin/routeplay/internal/timeline"
	rtls "github.com/loykin/routeplay/internal/tls"
)

const (
	defaultStreamBuffer = 256
	defaultKeepAlive    = 15 * time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Player is the scheduler surface exposed over HTTP.
type Player interface {
	Load(ctx context.Context, src timeline.Source) error
	Play()
	Pause()
	Stop()
	Seek(target time.Duration)
	SetSpeed(x float64) float64
	Status() scheduler.Status
	On(fn bus.Listener) *bus.Subscription
}

// Router provides embeddable HTTP handlers for controlling a scheduler.
// Endpoints:
//
//	POST {basePath}/load      body: timeline Document JSON, or query file=/abs/path
//	POST {basePath}/play|pause|stop
//	POST {basePath}/seek      query: t=750 (ms) or t=1.5s
//	POST {basePath}/speed     query: x=1.5
//	GET  {basePath}/status
//	GET  {basePath}/events    query: kind=... (repeatable), server-sent events
//	GET  {basePath}/history   query: limit=N (only with a history lister)
//	GET  {basePath}/healthz   never authenticated
type Router struct {
	player    Player
	basePath  string
	logger    *slog.Logger
	secret    []byte
	history   history.Lister
	buffer    int
	keepAlive time.Duration
}

type Option func(*Router)

// WithJWTSecret requires HS256 bearer tokens on every endpoint but healthz.
func WithJWTSecret(secret string) Option {
	return func(r *Router) { r.secret = []byte(secret) }
}

func WithHistory(l history.Lister) Option {
	return func(r *Router) { r.history = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithStream tunes the per-client event buffer and keepalive period of /events.
func WithStream(buffer int, keepAlive time.Duration) Option {
	return func(r *Router) {
		if buffer > 0 {
			r.buffer = buffer
		}
		if keepAlive > 0 {
			r.keepAlive = keepAlive
		}
	}
}

// NewRouter constructs a Router. Example basePath "/api" results in
// /api/play, /api/status and so on.
func NewRouter(p Player, basePath string, opts ...Option) *Router {
	r := &Router{
		player:    p,
		basePath:  sanitizeBase(basePath),
		logger:    slog.Default(),
		buffer:    defaultStreamBuffer,
		keepAlive: defaultKeepAlive,
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With("component", "http")
	return r
}

func (r *Router) BasePath() string { return r.basePath }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	root := g.Group(r.basePath)
	root.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, gin.H{"ok": true}) })

	group := root.Group("")
	if len(r.secret) > 0 {
		group.Use(JWTAuth(r.secret))
	}
	group.POST("/load", r.handleLoad)
	group.POST("/play", r.control(r.player.Play))
	group.POST("/pause", r.control(r.player.Pause))
	group.POST("/stop", r.control(r.player.Stop))
	group.POST("/seek", r.handleSeek)
	group.POST("/speed", r.handleSpeed)
	group.GET("/status", r.handleStatus)
	group.GET("/events", r.handleEvents)
	if r.history != nil {
		group.GET("/history", r.handleHistory)
	}
	return g
}

// --- Handlers ---

func (r *Router) handleLoad(c *gin.Context) {
	var doc timeline.Document
	if file := c.Query("file"); file != "" {
		if !isSafeAbsPath(file) {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid file: must be absolute path without traversal"})
			return
		}
		d, err := timeline.ReadDocument(file)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		doc = d
	} else if err := c.ShouldBindJSON(&doc); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}

	tl, err := doc.Timeline()
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if err := r.player.Load(c.Request.Context(), timeline.NewStatic(tl)); err != nil {
		code := http.StatusBadRequest
		switch {
		case errors.Is(err, scheduler.ErrLoadSuperseded):
			code = http.StatusConflict
		case errors.Is(err, scheduler.ErrDisposed):
			code = http.StatusGone
		}
		writeJSON(c, code, errorResp{Error: err.Error()})
		return
	}
	r.logger.Info("timeline loaded", "events", tl.Len(), "total_ms", tl.TotalDuration.Milliseconds())
	writeJSON(c, http.StatusOK, r.player.Status())
}

func (r *Router) control(op func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		op()
		writeJSON(c, http.StatusOK, r.player.Status())
	}
}

func (r *Router) handleSeek(c *gin.Context) {
	d, err := parseSeekTarget(c.Query("t"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	r.player.Seek(d)
	writeJSON(c, http.StatusOK, r.player.Status())
}

func (r *Router) handleSpeed(c *gin.Context) {
	x, err := parseSpeed(c.Query("x"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	r.player.SetSpeed(x)
	writeJSON(c, http.StatusOK, r.player.Status())
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.player.Status())
}

func (r *Router) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	evs, err := r.history.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if evs == nil {
		evs = []history.Event{}
	}
	writeJSON(c, http.StatusOK, evs)
}

// handleEvents streams published events as SSE. The first message is a
// "status" snapshot. Events are dropped for a client whose buffer is full.
func (r *Router) handleEvents(c *gin.Context) {
	kinds, err := parseKinds(c.QueryArray("kind"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}

	ch := make(chan timeline.Event, r.buffer)
	var dropped atomic.Int64
	sub := r.player.On(func(ev timeline.Event) {
		if kinds != nil && !kinds[ev.Kind] {
			return
		}
		select {
		case ch <- ev:
		default:
			dropped.Add(1)
		}
	})
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ctx := c.Request.Context()
	keepAlive := time.NewTicker(r.keepAlive)
	defer keepAlive.Stop()

	c.SSEvent("status", r.player.Status())
	// headers and the snapshot go out now, not with the first event
	c.Writer.Flush()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-ch:
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("keepalive", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
	sub.Close()
	if n := dropped.Load(); n > 0 {
		r.logger.Warn("event stream dropped events", "dropped", n)
	}
}

// NewServer binds addr and serves the router in the background. TLS is
// enabled when the server config asks for it.
func NewServer(cfg config.ServerConfig, p Player, opts ...Option) (*http.Server, error) {
	if cfg.JWTSecret != "" {
		opts = append([]Option{WithJWTSecret(cfg.JWTSecret)}, opts...)
	}
	r := NewRouter(p, cfg.BasePath, opts...)
	tlsCfg, err := rtls.SetupTLS(cfg)
	if err != nil {
		return nil, err
	}
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r.Handler(),
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// request contexts end on Shutdown so open event streams return
	baseCtx, cancel := context.WithCancel(context.Background())
	server.BaseContext = func(net.Listener) context.Context { return baseCtx }
	server.RegisterOnShutdown(cancel)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		cancel()
		return nil, err
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	server.Addr = ln.Addr().String()
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server stopped", "error", err)
		}
	}()
	r.logger.Info("http api listening", "addr", server.Addr, "base", r.basePath, "tls", tlsCfg != nil)
	return server, nil
}
