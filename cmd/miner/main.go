// Command miner runs a headless Twitch drops mining session: it logs in,
// keeps track of active campaigns, watches one channel at a time and claims
// completed drops. A local HTTP control surface exposes state and settings.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/twitch-drops-go/internal/auth"
	"github.com/Guliveer/twitch-drops-go/internal/cache"
	"github.com/Guliveer/twitch-drops-go/internal/config"
	"github.com/Guliveer/twitch-drops-go/internal/errs"
	"github.com/Guliveer/twitch-drops-go/internal/events"
	"github.com/Guliveer/twitch-drops-go/internal/gql"
	"github.com/Guliveer/twitch-drops-go/internal/logger"
	"github.com/Guliveer/twitch-drops-go/internal/miner"
	"github.com/Guliveer/twitch-drops-go/internal/notify"
	"github.com/Guliveer/twitch-drops-go/internal/server"
	"github.com/Guliveer/twitch-drops-go/internal/twitch"
)

// Process exit codes.
const (
	exitOK     = 0
	exitFatal  = 1
	exitLogin  = 2
	exitConfig = 3
)

const forceExitTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// a missing .env is not an error
	_ = godotenv.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := config.LoadEnv(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "environment: %v\n", err)
		return exitConfig
	}

	cfg, err := config.Load(env.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfig
	}

	paths := config.NewPaths(env.DataDir)
	if err := paths.Ensure(); err != nil {
		fmt.Fprintf(os.Stderr, "data directory: %v\n", err)
		return exitConfig
	}

	bus := events.NewBus()
	console := server.NewConsole(bus)

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLevel(cfg.LogLevel)
	logCfg.LogDir = paths.LogDir
	logCfg.Extra = append(logCfg.Extra, console)
	log, err := logger.Setup(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return exitFatal
	}

	dispatcher := notify.NewDispatcher(cfg.Notifications, log)
	if dispatcher.HasNotifiers() {
		log.SetNotifyFunc(dispatcher.NotifyFunc())
	}

	art, err := cache.NewStore(paths.CacheDir, log)
	if err != nil {
		log.Error("Cache directory unusable", "error", err)
		return exitFatal
	}

	authenticator := auth.NewAuthenticator(paths.CookiesFile, log)
	gqlClient := gql.NewClient(authenticator, log)
	twitchClient := twitch.NewClient(authenticator, gqlClient, log)

	m, err := miner.New(cfg, paths, authenticator, gqlClient, twitchClient, art, log, bus)
	if err != nil {
		log.Error("Miner setup failed", "error", err)
		return exitConfig
	}

	srv := server.New(env.Port, m, bus, console, art, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("Shutdown signal received", "signal", sig.String())
		cancel()

		time.AfterFunc(forceExitTimeout, func() {
			log.Error("Graceful shutdown timed out, forcing exit")
			os.Exit(exitFatal)
		})
	}()

	log.Info("Starting drops miner",
		"data_dir", paths.DataDir, "port", env.Port, "container", env.Container)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(runCtx) })
	g.Go(func() error { return srv.Run(runCtx) })

	err = g.Wait()
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, errs.ErrExitRequest):
		log.Info("Shutdown complete")
		return exitOK
	case isLoginFailure(err):
		log.Error("Authentication failed, user intervention required", "error", err)
		return exitLogin
	default:
		log.Error("Miner failed", "error", err)
		return exitFatal
	}
}

func isLoginFailure(err error) bool {
	var loginErr *errs.LoginError
	return errors.As(err, &loginErr) || errors.Is(err, errs.ErrCaptchaRequired)
}
