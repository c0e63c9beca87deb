package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dayuer/haggle-go/internal/bus"
	"github.com/dayuer/haggle-go/internal/lane"
	"github.com/dayuer/haggle-go/internal/redis"
	"github.com/dayuer/haggle-go/internal/server"
	"github.com/dayuer/haggle-go/internal/session"
)

var (
	servePort   int
	serveAPIKey string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the negotiation server (HTTP API and party WebSockets)",
	Long: `Start the haggle server with:
  - Session API (/api/sessions, pause/resume/reset, /api/status)
  - Market analysis and HTTP seller replies (/api/market-analysis, /api/seller-response)
  - Buyer and seller WebSockets (/ws/{buyer|seller}/{id})
  - Agent, enhancer and rules decision tiers
  - Optional Redis listing cache and session mirror`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "HTTP port (overrides config and HAGGLE_PORT)")
	serveCmd.Flags().StringVar(&serveAPIKey, "api-key", "", "bearer token for the HTTP API (or HAGGLE_API_KEY)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveAPIKey != "" {
		cfg.Server.APIKey = serveAPIKey
	}
	log := setupLogger(cfg)

	if pid := runningPID(cfg); pid != 0 {
		return errors.Errorf("server already running (pid %d)", pid)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if redis.Init(redis.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}) {
		defer redis.Close()
	}

	resolver := makeResolver(ctx, cfg, log)
	pipeline := makePipeline(ctx, cfg, log)
	log.Info("decision tiers ready", "tiers", pipeline.Tiers())

	b := bus.New(bus.Config{
		QueueLimit: cfg.Session.QueueLimit,
		Logger:     log.WithComponent("bus"),
	})
	defer b.Close()
	lanes := lane.NewManager(lane.ManagerConfig{Logger: log.WithComponent("lane")})
	defer lanes.Stop()

	sessions, err := session.NewManager(resolver, pipeline, b, session.Options{
		MaxMessages:   cfg.Session.MaxMessages,
		IdleTimeout:   cfg.Session.IdleTimeoutDuration(),
		Retention:     cfg.Session.RetentionDuration(),
		SweepInterval: cfg.Session.SweepDuration(),
		PendingLimit:  cfg.Session.QueueLimit,
		DataDir:       cfg.GetDataDir(),
		Mirror:        session.RedisMirror{TTL: cfg.Session.RetentionDuration()},
		Lanes:         lanes,
		Logger:        log.WithComponent("session"),
	})
	if err != nil {
		return errors.Wrap(err, "session manager")
	}

	srv := server.New(server.Config{
		Addr:     fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		APIKey:   cfg.Server.APIKey,
		Sessions: sessions,
		Market:   resolver,
		Bus:      b,
		Lanes:    lanes,
		Pipeline: pipeline,
		Logger:   log.WithComponent("server"),
	})

	if err := writePID(cfg); err != nil {
		log.Warn("pid file not written", "error", err)
	}
	defer removePID(cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sessions.Run(gctx)
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}
