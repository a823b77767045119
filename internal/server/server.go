// Package server exposes the messaging layer over HTTP: a JSON API for room
// and message operations, an SSE bridge for the change feed, and a websocket
// channel for live room views.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quaymarket/parley/internal/chat"
	"github.com/quaymarket/parley/internal/feed"
	"github.com/quaymarket/parley/internal/identity"
	"github.com/quaymarket/parley/internal/presence"
	"gorm.io/gorm"
)

// Opts holds configuration for the API server.
type Opts struct {
	DB       *gorm.DB
	Feed     *feed.Feed
	Identity identity.Provider
	Presence *presence.Tracker // optional; nil disables focus tracking
	Port     int
	Out      io.Writer
}

// Server bundles the messaging components behind the HTTP surface.
type Server struct {
	db        *gorm.DB
	feed      *feed.Feed
	idp       identity.Provider
	presence  *presence.Tracker
	directory *chat.Directory
	store     *chat.Store
	reads     *chat.ReadTracker
	router    *gin.Engine
	port      int
	out       io.Writer
}

// New creates a Server and builds its routes.
func New(opts Opts) (*Server, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("server: db is required")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("server: feed is required")
	}
	if opts.Identity == nil {
		return nil, fmt.Errorf("server: identity provider is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	directory, err := chat.NewDirectory(opts.DB)
	if err != nil {
		return nil, err
	}
	store, err := chat.NewStore(opts.DB)
	if err != nil {
		return nil, err
	}
	reads, err := chat.NewReadTracker(opts.DB)
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:        opts.DB,
		feed:      opts.Feed,
		idp:       opts.Identity,
		presence:  opts.Presence,
		directory: directory,
		store:     store,
		reads:     reads,
		port:      opts.Port,
		out:       opts.Out,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.registerRoutes(router)
	s.router = router

	return s, nil
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the HTTP server. It blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if s.out != nil {
		fmt.Fprintf(s.out, "Parley API listening on http://localhost:%d\n", s.port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
