package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"noteshare/internal/app"
	"noteshare/internal/config"
	"noteshare/internal/server"
	"noteshare/internal/store"
	"noteshare/internal/util"
	"noteshare/pkg/domain"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	util.InitLogger(cfg.LogLevel)

	var st store.Store
	if cfg.DatabaseURL != "" {
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		st = gormStore
		slog.Info("using postgres store")
	} else {
		st = store.NewMemoryStore()
		slog.Warn("no databaseUrl configured, using in-memory store")
	}

	a, err := app.New(app.Config{
		Store:         st,
		UploadDir:     cfg.UploadDir,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		JWTSecret:     cfg.JWTSecret,
		SessionTTL:    cfg.SessionTTL.Std(),
	})
	if err != nil {
		return err
	}

	if len(cfg.Courses) > 0 {
		seeds := make([]domain.Course, 0, len(cfg.Courses))
		for _, c := range cfg.Courses {
			seeds = append(seeds, domain.Course{Code: c.Code, Name: c.Name, Description: c.Description})
		}
		if err := a.SeedCourses(seeds); err != nil {
			return fmt.Errorf("seed courses: %w", err)
		}
		slog.Info("course catalogue seeded", "count", len(seeds))
	}

	srv, err := server.New(server.Config{
		App:                        a,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		TrustedProxies:             cfg.TrustedProxyCIDRs,
	})
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	slog.Info("listening", "addr", addr)
	return httpServer.ListenAndServe()
}
