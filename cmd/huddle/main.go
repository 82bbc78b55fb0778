package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-hclog"
	"github.com/huddlechat/huddle/auth"
	"github.com/huddlechat/huddle/config"
	"github.com/huddlechat/huddle/globals"
	"github.com/huddlechat/huddle/persistence"
	"github.com/huddlechat/huddle/presence"
	"github.com/huddlechat/huddle/ratelimit"
	"github.com/huddlechat/huddle/server"
	"github.com/huddlechat/huddle/ws"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if cfg.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
	}
	if cfg.Auth.Secret == "" {
		globals.AppLogger.Error("auth.secret must be configured")
		os.Exit(1)
	}

	// keep a second instance off the same data file
	if dsn := cfg.Persistence.DSN; dsn != "" && dsn != ":memory:" && cfg.Persistence.Type != "postgres" {
		fileLock := flock.New(dsn + ".lock")
		locked, err := fileLock.TryLock()
		if err != nil || !locked {
			globals.AppLogger.Error("data file is locked by another process", "path", dsn, "error", err)
			os.Exit(1)
		}
		defer fileLock.Unlock() //nolint
	}

	store, err := persistence.NewStore(cfg)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	hub := ws.NewHub(store, presence.NewRegistry(), ratelimit.NewLimiter(cfg.RateLimit.Window, cfg.RateLimit.MaxMessages))
	go hub.Run()

	issuer := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenLifetime)
	srv := server.NewServer(cfg, store, hub, issuer)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: srv.Router()}

	go func() {
		globals.AppLogger.Info("listening", "addr", cfg.Addr)
		var err error
		if *sslCert != "" && *sslKey != "" {
			err = httpServer.ListenAndServeTLS(*sslCert, *sslKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			globals.AppLogger.Error("stopped listening", "error", err)
			os.Exit(1)
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	globals.AppLogger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		globals.AppLogger.Error("shutdown did not complete cleanly", "error", err)
	}
	hub.Stop()
}
