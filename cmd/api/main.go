package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/clubllm/backend/internal/config"
	"github.com/zhouzirui/clubllm/backend/internal/handler"
	"github.com/zhouzirui/clubllm/backend/internal/service/ai"
	"github.com/zhouzirui/clubllm/backend/internal/service/identity"
	"github.com/zhouzirui/clubllm/backend/internal/service/relay"
	"github.com/zhouzirui/clubllm/backend/internal/service/session"
	"github.com/zhouzirui/clubllm/backend/internal/web"
	"github.com/zhouzirui/clubllm/backend/pkg/logger"
)

const sweepInterval = 10 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

// run owns every resource it opens, so deferred cleanup happens before main exits.
func run(ctx context.Context) error {
	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	accounts, err := identity.Open(ctx, cfg.Identity)
	if err != nil {
		return fmt.Errorf("open identity store: %w", err)
	}
	defer func() {
		if err := accounts.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close identity store")
		}
	}()

	sessions := session.NewService(cfg.Session.TTL)
	manager := session.NewManager(sessions, session.NewTokens(cfg.Session.Secret), cfg.Session.CookieSecure)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweepSessions(sweepCtx, sessions)

	// 未配置模型凭证时服务照常启动，聊天接口返回 503
	var chatRelay *relay.Relay
	completer, err := ai.NewCompleter(ctx, cfg.AI)
	if err != nil {
		log.Warn().Err(err).Str("provider", cfg.AI.Provider).Msg("continuing without chat functionality")
	} else {
		chatRelay = relay.New(completer)
		log.Info().Str("provider", cfg.AI.Provider).Msg("completion backend initialized")
	}

	pages, err := web.NewRenderer()
	if err != nil {
		return fmt.Errorf("parse page templates: %w", err)
	}

	router := handler.NewRouter(handler.Deps{
		Accounts:       accounts,
		Sessions:       manager,
		Relay:          chatRelay,
		Pages:          pages,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", srv.Addr).Msg("ClubLLM listening")
	return runServer(ctx, srv)
}

// sweepSessions drops expired sessions until ctx is done.
func sweepSessions(ctx context.Context, sessions *session.Service) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := sessions.Sweep(now); n > 0 {
				log.Debug().Int("removed", n).Msg("[session] swept expired sessions")
			}
		}
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
