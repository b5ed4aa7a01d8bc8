// chatsync is a terminal chat client built on the conversation sync engine.
//
// Usage:
//
//	chatsync                   # settings from ./.env and the environment
//	chatsync --env prod.env    # settings from a specific file
//	chatsync --headless        # no terminal UI; log every view change
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"

	"github.com/whisper/chat-sync/internal/api"
	"github.com/whisper/chat-sync/internal/config"
	"github.com/whisper/chat-sync/internal/engine"
	"github.com/whisper/chat-sync/internal/gateway"
	"github.com/whisper/chat-sync/internal/messaging"
	"github.com/whisper/chat-sync/internal/metrics"
	"github.com/whisper/chat-sync/internal/ratelimit"
	"github.com/whisper/chat-sync/internal/ws"
)

// liveTransport is the push stream plus the outbound intent channel.
type liveTransport interface {
	Listen(handler func(data []byte)) error
	Publish(data []byte) error
	Close() error
}

func main() {
	envFile := flag.String("env", "", "load settings from this file instead of ./.env")
	headless := flag.Bool("headless", false, "run without the terminal UI")
	logPath := flag.String("log", "chatsync.log", "log file while the terminal UI is running")
	flag.Parse()

	cfg, err := loadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatsync: %v\n", err)
		os.Exit(1)
	}

	// The UI owns the terminal, so logs go to a file.
	if !*headless {
		f, err := tea.LogToFile(*logPath, "chatsync ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "chatsync: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
	}

	log.Printf("chatsync starting")
	log.Printf("  user_id:       %s", cfg.UserID)
	log.Printf("  transport:     %s", cfg.Transport)
	log.Printf("  api_url:       %s", cfg.API.BaseURL)
	log.Printf("  send_cooldown: %s", cfg.SendCooldown)
	log.Printf("  redis_addr:    %s", cfg.RedisAddr)
	log.Printf("  metrics_addr:  %s", cfg.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	live, err := dialTransport(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to connect live transport: %v", err)
	}
	defer func() {
		if err := live.Close(); err != nil {
			log.Printf("transport close error: %v", err)
		}
	}()

	throttle, closeThrottle := newThrottle(cfg)
	defer closeThrottle()

	client := api.NewClient(cfg.API)

	gwCfg := gateway.DefaultConfig()
	gwCfg.UserID = cfg.UserID
	gwCfg.RequestTimeout = cfg.API.Timeout

	eng := engine.New(engine.Config{Gateway: gwCfg, QueueWarn: cfg.EventQueue}, engine.Deps{
		History:   client,
		Deleter:   client,
		Members:   client,
		Publisher: live,
		Throttle:  throttle,
	})

	if err := live.Listen(eng.HandleLiveEvent); err != nil {
		log.Fatalf("failed to subscribe to live events: %v", err)
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(ctx, cfg.MetricsAddr)
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	if *headless {
		eng.OnChange(logView)
		<-ctx.Done()
	} else if err := runUI(ctx, eng, cfg.UserID); err != nil {
		log.Printf("ui error: %v", err)
	}

	stop()
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("engine error: %v", err)
	}
	log.Printf("chatsync stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func dialTransport(ctx context.Context, cfg *config.Config) (liveTransport, error) {
	switch cfg.Transport {
	case config.TransportWS:
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		c, err := ws.Dial(dialCtx, cfg.WS)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		nc, err := messaging.NewNATSClient(cfg.NATS)
		if err != nil {
			return nil, err
		}
		return nc.ForUser(cfg.UserID), nil
	}
}

// newThrottle shares the send cool-down through Redis when configured, so
// every client process of the user observes it.
func newThrottle(cfg *config.Config) (ratelimit.Throttle, func()) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewCooldown(cfg.SendCooldown), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Printf("[ratelimit] redis %s unreachable (%v), using in-process cool-down", cfg.RedisAddr, err)
		rdb.Close()
		return ratelimit.NewCooldown(cfg.SendCooldown), func() {}
	}
	rule := ratelimit.SendRule(cfg.SendCooldown)
	rule.Key += cfg.UserID + ":"
	return ratelimit.NewLimiter(rdb, rule), func() {
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
	}
}

func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("[metrics] listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("[metrics] server error: %v", err)
	}
}

func logView(v engine.View) {
	log.Printf("[view] focus=%s conversations=%d unread=%d notices=%d online=%d",
		v.Focus, len(v.Conversations), v.Unread(), len(v.Notices), len(v.Online))
}
