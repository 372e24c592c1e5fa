package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/agentstream"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/api"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/effort"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/session"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

type sessionCloser interface {
	CloseAll(ctx context.Context) error
}

var (
	loadConfig  = config.Load
	initMetrics = metrics.InitMetrics
	newBroker   = events.NewBroker
	newAgent    = func(cfg config.Config) *agentstream.Client {
		return agentstream.NewClient(agentstream.Config{
			BaseURL:        cfg.AgentURL,
			AssistantID:    cfg.AgentAssistantID,
			ConnectTimeout: cfg.AgentConnectTimeout(),
		})
	}
	newServer = func(sessions *session.Manager, broker *events.Broker, probe api.AgentProbe, cfg config.Config) server {
		return api.NewServer(sessions, broker, probe, cfg)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defaultEffort, err := effort.Parse(cfg.DefaultEffort)
	if err != nil {
		return fmt.Errorf("DEFAULT_EFFORT: %w", err)
	}
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	initMetrics()
	broker := newBroker(cfg.SessionEventBuffer)
	sessions := session.NewManager(func() session.Transport {
		return newAgent(cfg)
	}, broker, session.Options{
		DefaultEffort:         defaultEffort,
		DefaultReasoningModel: cfg.DefaultReasoningModel,
	})
	srv := newServer(sessions, broker, newAgent(cfg), cfg)

	addr := fmt.Sprintf(":%s", cfg.ConsolePort)
	log.Printf("Research console listening on %s (agent %s)", addr, cfg.AgentURL)
	return serve(ctx, srv, sessions, addr)
}

func serve(ctx context.Context, srv server, sessions sessionCloser, addr string) error {
	g, gctx := errgroup.WithContext(ctx)
	gctx, stop := context.WithCancel(gctx)
	defer stop()
	g.Go(func() error {
		defer stop()
		if err := srv.Start(gctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		if err := sessions.CloseAll(context.Background()); err != nil {
			log.Printf("[console] close sessions: %v", err)
		}
		return nil
	})
	return g.Wait()
}
