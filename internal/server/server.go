// Package server runs the HTTP listener and the background workers that
// share its lifetime, and shuts both down in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// ShutdownFunc is a function that shuts down a component gracefully.
type ShutdownFunc func(ctx context.Context) error

// TaskFunc is a background loop. It must return once ctx is cancelled.
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	fn   TaskFunc
}

// Server wraps http.Server with background tasks and graceful shutdown.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger

	mu            sync.Mutex
	tasks         []task
	shutdownFuncs []ShutdownFunc
	listener      net.Listener
	ready         chan struct{}
}

// New creates a new Server instance.
func New(handler http.Handler, port int, readTimeout, writeTimeout, shutdownTimeout time.Duration, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       2 * time.Minute,
		},
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
		ready:           make(chan struct{}),
	}
}

// Go registers a background task started by Run. Tasks get a context that
// is cancelled after the HTTP server has drained.
func (s *Server) Go(name string, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task{name: name, fn: fn})
}

// OnShutdown registers a function to be called during graceful shutdown.
// Shutdown functions run in reverse registration order, after the HTTP
// server stops and background tasks have returned.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownFuncs = append(s.shutdownFuncs, func(ctx context.Context) error {
		s.logger.Info("shutting down component", "name", name)
		if err := fn(ctx); err != nil {
			s.logger.Error("component shutdown error", "name", name, "error", err)
			return err
		}
		s.logger.Info("component stopped", "name", name)
		return nil
	})
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM arrives, or the
// listener fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	tasks := append([]task(nil), s.tasks...)
	s.mu.Unlock()
	close(s.ready)

	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	var bg errgroup.Group
	for _, t := range tasks {
		bg.Go(func() error {
			s.logger.Info("background task starting", "name", t.name)
			err := t.fn(taskCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("background task failed", "name", t.name, "error", err)
				return fmt.Errorf("%s: %w", t.name, err)
			}
			s.logger.Info("background task stopped", "name", t.name)
			return nil
		})
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case err := <-serverErr:
		if err != nil {
			runErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info("shutdown signal received", "cause", context.Cause(ctx))
	}

	if err := s.gracefulShutdown(cancelTasks, &bg); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Addr returns the bound address once Run is listening, else the
// configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) gracefulShutdown(cancelTasks context.CancelFunc, bg *errgroup.Group) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("phase 1: stopping HTTP server", "timeout", s.shutdownTimeout)
	s.httpServer.SetKeepAlivesEnabled(false)
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		errs = append(errs, err)
	}
	s.logger.Info("HTTP server stopped")

	s.logger.Info("phase 2: stopping background tasks")
	cancelTasks()
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, err)
		}
	case <-ctx.Done():
		s.logger.Error("background tasks did not stop before timeout")
		errs = append(errs, ctx.Err())
	}

	s.mu.Lock()
	funcs := s.shutdownFuncs
	s.mu.Unlock()
	s.logger.Info("phase 3: stopping registered components", "count", len(funcs))
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		s.logger.Error("shutdown completed with errors", "error_count", len(errs))
		return errors.Join(errs...)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
