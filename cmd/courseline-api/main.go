package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edusphere/courseline/internal/api/facade"
	"github.com/edusphere/courseline/internal/api/presence"
	"github.com/edusphere/courseline/internal/api/repository"
	"github.com/edusphere/courseline/internal/api/server"
	"github.com/edusphere/courseline/internal/api/service"
	"github.com/edusphere/courseline/internal/api/utility"
	"github.com/edusphere/courseline/internal/common"
	"github.com/redis/go-redis/v9"
)

func main() {
	utility.ConfigureSlog(os.Stderr)
	cfg := utility.ParseFlags()
	// Base
	db := repository.OpenDB(cfg)
	bgTask := common.NewBackgroundTask()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	tracker := presence.NewTracker(presence.NewRedisStore(rdb, "courseline", time.Minute))
	// Repositories
	userRepo := repository.NewUserRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	// Services
	userService := service.NewUserService(userRepo)
	conversationService := service.NewConversationService(conversationRepo)
	messageService := service.NewMessageService(messageRepo, conversationRepo, userRepo, db)
	// Service Group
	srv := service.New(userService, conversationService, messageService)
	// Facades
	userFacade := facade.NewUserFacade(srv)
	conversationFacade := facade.NewConversationFacade(srv, tracker)
	messageFacade := facade.NewMessageFacade(srv)
	// Facade Group
	fac := facade.New(userFacade, conversationFacade, messageFacade)
	// Server
	s := server.NewServer(cfg, bgTask, fac, tracker)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		bgTask.Shutdown(10 * time.Second)
	}()
	if err := s.Serve(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
