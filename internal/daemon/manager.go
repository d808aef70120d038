// SPDX-License-Identifier: MIT

// Package daemon manages the process lifecycle: HTTP listeners, background
// loops and ordered shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// Manager manages the daemon lifecycle: starting servers and background
// loops, handling shutdown.
type Manager interface {
	// Start starts everything and blocks until ctx is cancelled or a
	// component fails.
	Start(ctx context.Context) error

	// Shutdown gracefully shuts down all servers and loops.
	Shutdown(ctx context.Context) error

	// AddRunner registers a background loop started with Start. Runners
	// must return promptly when their context is cancelled.
	AddRunner(name string, run func(ctx context.Context) error)

	// RegisterShutdownHook registers a function to be called during shutdown.
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type namedHook struct {
	name string
	hook ShutdownHook
}

type namedRunner struct {
	name string
	run  func(ctx context.Context) error
}

type manager struct {
	serverCfg ServerConfig
	deps      Deps

	apiServer     *http.Server
	metricsServer *http.Server

	runners       []namedRunner
	runnersCancel context.CancelFunc
	runnersWG     sync.WaitGroup

	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

// NewManager creates a daemon manager.
func NewManager(serverCfg ServerConfig, deps Deps) (Manager, error) {
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dependencies: %w", err)
	}
	return &manager{
		serverCfg: serverCfg,
		deps:      deps,
		logger:    deps.Logger.With().Str("component", "daemon").Logger(),
	}, nil
}

func (m *manager) AddRunner(name string, run func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners = append(m.runners, namedRunner{name: name, run: run})
}

// Start starts all servers and runners and blocks until shutdown.
func (m *manager) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("start context is nil")
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("manager already started")
	}
	m.started = true
	runners := m.runners
	m.mu.Unlock()

	m.logger.Info().
		Str("listen", m.serverCfg.ListenAddr).
		Dur("shutdown_timeout", m.serverCfg.ShutdownTimeout).
		Msg("starting daemon")

	errChan := make(chan error, len(runners)+2)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.runnersCancel = cancel

	if m.deps.MetricsHandler != nil && m.serverCfg.MetricsAddr != "" {
		m.startMetricsServer(errChan)
	}
	m.startAPIServer(errChan)

	for _, r := range runners {
		r := r
		m.runnersWG.Add(1)
		go func() {
			defer m.runnersWG.Done()
			m.logger.Debug().Str("runner", r.name).Msg("runner started")
			if err := r.run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error().Err(err).Str("runner", r.name).Msg("runner failed")
				errChan <- fmt.Errorf("runner %s: %w", r.name, err)
			}
		}()
	}

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("component error, initiating shutdown")
		// Detached but bounded so shutdown completes even if the parent
		// is already cancelled.
		shutdownCtx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer scancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("component error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		shutdownCtx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer scancel()
		return m.Shutdown(shutdownCtx)
	}
}

func (m *manager) startAPIServer(errChan chan<- error) {
	m.apiServer = &http.Server{
		Addr:              m.serverCfg.ListenAddr,
		Handler:           m.deps.APIHandler,
		ReadTimeout:       m.serverCfg.ReadTimeout,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
		WriteTimeout:      m.serverCfg.WriteTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
	}

	go func() {
		m.logger.Info().
			Str("addr", m.serverCfg.ListenAddr).
			Msg("API server listening")
		if err := m.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str("event", "api.server.failed").
				Msg("API server failed")
			errChan <- fmt.Errorf("API server: %w", err)
		}
	}()
}

func (m *manager) startMetricsServer(errChan chan<- error) {
	m.metricsServer = &http.Server{
		Addr:              m.serverCfg.MetricsAddr,
		Handler:           m.deps.MetricsHandler,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
	}

	go func() {
		m.logger.Info().
			Str("addr", m.serverCfg.MetricsAddr).
			Msg("metrics server listening")
		if err := m.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str("event", "metrics.server.failed").
				Msg("metrics server failed")
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()
}

func (m *manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("shutdown context is nil")
	}

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	m.mu.Unlock()

	m.logger.Info().Msg("shutting down daemon")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error

	// Stop background loops first so nothing publishes while entities are
	// being torn down by the hooks.
	if m.runnersCancel != nil {
		m.runnersCancel()
	}
	runnersDone := make(chan struct{})
	go func() {
		m.runnersWG.Wait()
		close(runnersDone)
	}()
	select {
	case <-runnersDone:
	case <-shutdownCtx.Done():
		errs = append(errs, fmt.Errorf("runners did not stop within %s", m.serverCfg.ShutdownTimeout))
	}

	if m.apiServer != nil {
		if err := m.apiServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}

	// Execute shutdown hooks in reverse order (LIFO)
	for i := len(m.shutdownHooks) - 1; i >= 0; i-- {
		hook := m.shutdownHooks[i]
		hookStart := time.Now()
		if err := hook.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", hook.name, err))
		} else {
			m.logger.Debug().
				Str("hook", hook.name).
				Dur("duration", time.Since(hookStart)).
				Msg("shutdown hook completed")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	m.logger.Info().Msg("daemon stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during
// shutdown. Hooks are executed in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
