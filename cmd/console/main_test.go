package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"testing"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/api"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/session"
)

type stubServer struct {
	err      error
	blocking bool
	addr     *string
}

func (s stubServer) Start(ctx context.Context, addr string) error {
	if s.addr != nil {
		*s.addr = addr
	}
	if s.blocking {
		<-ctx.Done()
		return http.ErrServerClosed
	}
	return s.err
}

type stubCloser struct {
	calls int
	err   error
}

func (c *stubCloser) CloseAll(ctx context.Context) error {
	c.calls++
	return c.err
}

func captureConsoleDeps() func() {
	origLoadConfig := loadConfig
	origInitMetrics := initMetrics
	origNewBroker := newBroker
	origNewServer := newServer
	origNotifyContext := notifyContext

	return func() {
		loadConfig = origLoadConfig
		initMetrics = origInitMetrics
		newBroker = origNewBroker
		newServer = origNewServer
		notifyContext = origNotifyContext
	}
}

func stubNotify() {
	notifyContext = func(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}
}

func TestRunSuccess(t *testing.T) {
	restore := captureConsoleDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		cfg := config.Defaults()
		cfg.ConsolePort = "0"
		return cfg, nil
	}
	metricsInitialized := false
	initMetrics = func() { metricsInitialized = true }
	var gotAddr string
	var gotProbe api.AgentProbe
	newServer = func(_ *session.Manager, _ *events.Broker, probe api.AgentProbe, _ config.Config) server {
		gotProbe = probe
		return stubServer{addr: &gotAddr}
	}
	stubNotify()

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !metricsInitialized {
		t.Fatal("expected metrics to be initialized")
	}
	if gotAddr != ":0" {
		t.Fatalf("expected listen address :0, got %q", gotAddr)
	}
	if gotProbe == nil {
		t.Fatal("expected agent probe to be wired")
	}
}

func TestRunConfigLoadFailure(t *testing.T) {
	restore := captureConsoleDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("config load failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunInvalidDefaultEffort(t *testing.T) {
	restore := captureConsoleDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		cfg := config.Defaults()
		cfg.DefaultEffort = "maximum"
		return cfg, nil
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunServerFailure(t *testing.T) {
	restore := captureConsoleDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Defaults(), nil
	}
	initMetrics = func() {}
	newServer = func(_ *session.Manager, _ *events.Broker, _ api.AgentProbe, _ config.Config) server {
		return stubServer{err: errors.New("address in use")}
	}
	stubNotify()

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestServeClosesSessionsOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	closer := &stubCloser{}
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, stubServer{blocking: true}, closer, ":0")
	}()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
	if closer.calls != 1 {
		t.Fatalf("expected sessions to be closed once, got %d", closer.calls)
	}
}

func TestServeCloseAllFailureIsNonFatal(t *testing.T) {
	closer := &stubCloser{err: errors.New("cancel rejected")}
	if err := serve(context.Background(), stubServer{}, closer, ":0"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if closer.calls != 1 {
		t.Fatalf("expected sessions to be closed once, got %d", closer.calls)
	}
}
