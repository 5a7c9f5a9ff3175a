package main

import (
	"github.com/jonathan/applier/internal/dedup"
	"github.com/jonathan/applier/internal/ingestion"
	"github.com/jonathan/applier/internal/matching"
	"github.com/jonathan/applier/internal/server"
	"github.com/jonathan/applier/internal/server/ratelimit"
	"github.com/jonathan/applier/internal/store"
	"github.com/spf13/cobra"
)

var (
	servePort   int
	serveMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes job ingestion, matching and the application workflow.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Keep data in memory instead of PostgreSQL (lost on exit)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	if servePort > 0 {
		a.cfg.Server.Port = servePort
	}

	var s store.Store
	if serveMemory {
		a.logger.Warn("using the in-memory store; data is lost on exit")
		s = store.NewMemory()
	} else {
		database, err := a.openDB(ctx)
		if err != nil {
			return err
		}
		s = database
	}

	engine, err := a.newEngine(ctx, s)
	if err != nil {
		return err
	}
	feed, err := ingestion.NewFeedReader()
	if err != nil {
		return err
	}

	var resume server.ResumeSource
	if a.cfg.ProfilePath != "" {
		resume = matching.NewResumeCache(engine, a.readProfile).Get
	} else {
		a.logger.Warn("no resume configured; matching endpoints are disabled")
	}

	var rl *ratelimit.Config
	if a.cfg.RateLimit.Enabled {
		rl = ratelimit.DefaultConfig(a.cfg.RateLimit.RequestsPerSecond, a.cfg.RateLimit.Burst)
	}

	srv, err := server.New(server.Config{
		Port:            a.cfg.Server.Port,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
		RateLimit:       rl,
	}, server.Deps{
		Store:        s,
		Gate:         dedup.New(s, a.logger.Named("dedup")),
		Feed:         feed,
		Engine:       engine,
		Applications: a.newService(s),
		Resume:       resume,
		Logger:       a.logger.Named("server"),
	})
	if err != nil {
		return err
	}
	return srv.Start(ctx)
}
