package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/abuimran/farmgate/gatekeeper"
	"github.com/abuimran/farmgate/internal/config"
	"github.com/abuimran/farmgate/internal/server"
	"github.com/abuimran/farmgate/logging"
	"github.com/abuimran/farmgate/notify"
	"github.com/abuimran/farmgate/ratelimit"
	"github.com/abuimran/farmgate/ratelimit/stats"
	"github.com/abuimran/farmgate/ratelimit/store"
	"github.com/abuimran/farmgate/sanitize"
	"github.com/abuimran/farmgate/session"
	"github.com/abuimran/farmgate/upstream"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway HTTP server.

SIGINT or SIGTERM shuts the server down gracefully, waiting up to
server.shutdown_timeout for in-flight requests.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}

		log, err := logging.New(logging.Config{Development: cfg.Log.Development, Level: cfg.Log.Level})
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		a, err := build(cfg, log)
		if err != nil {
			log.Error(logging.SourceServer, err.Error())
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				log.Error(logging.SourceServer, "HTTP server failed: "+err.Error())
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		log.Info(logging.SourceServer, "HTTP server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("upstream", "", "storefront renderer URL")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("upstream.url", serveCmd.Flags().Lookup("upstream"))
}

// app is the assembled gateway plus what must be released on exit.
type app struct {
	server  *server.Server
	closers []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// build wires every component from cfg.
func build(cfg *config.Config, log *logging.Logger) (*app, error) {
	a := &app{}

	var redisClient *redis.Client
	if cfg.RateLimit.Store == "redis" || (cfg.Stats.Enabled && cfg.Stats.Store == "redis") {
		client, err := store.NewClient(store.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		redisClient = client
		a.closers = append(a.closers, client.Close)
	}

	var ledger store.Store
	switch cfg.RateLimit.Store {
	case "redis":
		// The client is closed by the closer registered above.
		ledger = store.NewRedisFromClient(redisClient, cfg.Redis.Prefix)
		log.Info(logging.SourceServer, "Using redis rate limit ledger at "+cfg.Redis.URL)
	default:
		mem := store.NewMemory(store.WithCleanupInterval(cfg.RateLimit.CleanupInterval))
		a.closers = append(a.closers, mem.Close)
		ledger = mem
	}

	var recorder stats.Recorder = stats.Nop{}
	if cfg.Stats.Enabled {
		switch cfg.Stats.Store {
		case "redis":
			recorder = stats.NewRedis(redisClient, stats.WithTTL(cfg.Stats.TTL))
		default:
			recorder = stats.NewMemory()
		}
	}

	headerMode, ok := ratelimit.ParseHeaderMode(cfg.RateLimit.HeaderMode)
	if !ok {
		a.close()
		return nil, fmt.Errorf("unknown header mode %q", cfg.RateLimit.HeaderMode)
	}

	sessionMW := session.Passthrough
	if cfg.Auth.Enabled() {
		cookieName := cfg.Auth.CookieName
		if cookieName == "" {
			cookieName = session.CookieName(cfg.Auth.URL)
		}
		refresher := &session.Refresher{
			Client:        &session.Client{BaseURL: cfg.Auth.URL, AnonKey: cfg.Auth.AnonKey},
			CookieName:    cookieName,
			RefreshMargin: cfg.Auth.RefreshMargin,
			Logger:        log,
		}
		sessionMW = refresher.Middleware
	}

	gk := gatekeeper.New(ledger, log,
		gatekeeper.WithLimit(cfg.RateLimit.Limit, cfg.RateLimit.Window),
		gatekeeper.WithAPIPrefix(cfg.RateLimit.APIPrefix),
		gatekeeper.WithResolver(gatekeeper.Resolver{PlatformHeader: cfg.RateLimit.PlatformHeader}),
		gatekeeper.WithHeaderMode(headerMode),
		gatekeeper.WithSession(sessionMW),
		gatekeeper.WithRecorder(recorder),
	)

	var proxy http.Handler
	if cfg.Upstream.URL != "" {
		p, err := upstream.New(cfg.Upstream.URL, log)
		if err != nil {
			a.close()
			return nil, err
		}
		proxy = p
		if cfg.Upstream.SanitizeErrors {
			proxy = sanitize.New()(proxy)
		}
	} else {
		log.Warn(logging.SourceServer, "upstream.url is not set; unknown routes answer 404")
	}

	tg := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.Rate, cfg.Telegram.Burst)
	tg.BaseURL = cfg.Telegram.BaseURL
	if !tg.Configured() {
		log.Warn(logging.SourceTelegram, "Telegram credentials not found. Notifications will be skipped.")
	}

	a.server = server.New(cfg.Server, server.Deps{
		Logger:     log,
		Gatekeeper: gk,
		Upstream:   proxy,
		Notifier:   tg,
		AdminToken: cfg.Admin.Token,
	})
	return a, nil
}
