package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/edusphere/courseline/internal/api/facade"
	"github.com/edusphere/courseline/internal/api/presence"
	"github.com/edusphere/courseline/internal/api/utility"
	"github.com/edusphere/courseline/internal/common"
	"github.com/edusphere/courseline/internal/domain"
	"golang.org/x/time/rate"
)

type Server struct {
	Config                  *utility.Config
	BackgroundTask          *common.BackgroundTask
	Facade                  *facade.Facade
	Presence                *presence.Tracker
	wsAcceptOpts            *websocket.AcceptOptions
	subscriberMessageBuffer int
	publishLimiter          *rate.Limiter

	SubsMu      sync.Mutex
	Subscribers map[string]*domain.User
	rooms       *rooms
}

func NewServer(cfg *utility.Config, bt *common.BackgroundTask, fac *facade.Facade, tracker *presence.Tracker) *Server {
	return &Server{
		Config:         cfg,
		BackgroundTask: bt,
		Facade:         fac,
		Presence:       tracker,
		wsAcceptOpts: &websocket.AcceptOptions{
			CompressionMode:    websocket.CompressionContextTakeover,
			InsecureSkipVerify: true,
		},
		subscriberMessageBuffer: 16,
		publishLimiter:          rate.NewLimiter(rate.Every(100*time.Millisecond), 10),
		Subscribers:             make(map[string]*domain.User), // keys are userID
		rooms:                   newRooms(),
	}
}

func (s *Server) Serve() error {
	srv := &http.Server{
		Addr:         fmt.Sprint(":", s.Config.Port),
		Handler:      s.routes(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 6 * time.Second,
		IdleTimeout:  time.Minute,
	}
	shutdownErr := make(chan error, 1)
	s.BackgroundTask.Run(func(shtdwnCtx context.Context) {
		<-shtdwnCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr <- srv.Shutdown(ctx)
	})
	slog.Info("starting server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return <-shutdownErr
}
