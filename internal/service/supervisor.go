// ABOUTME: Named background services that can be listed, started and stopped at runtime
// ABOUTME: Operations on one service are serialized; protected services refuse stop and restart

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

var (
	// ErrUnknownService indicates no service is registered under the name.
	ErrUnknownService = errors.New("unknown service")
	// ErrAlreadyRunning indicates a start was requested for a running service.
	ErrAlreadyRunning = errors.New("service already running")
	// ErrNotRunning indicates a stop was requested for an inactive service.
	ErrNotRunning = errors.New("service not running")
	// ErrProtectedService indicates the service cannot be stopped through the control plane.
	ErrProtectedService = errors.New("service is protected")
	// ErrDuplicateService indicates a second registration under the same name.
	ErrDuplicateService = errors.New("service already registered")
)

// Service is a long-running component with an explicit lifecycle.
// Start must return once the service is up; Stop must return once it is down.
type Service interface {
	Name() string
	Running() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Status is a point-in-time view of one service.
type Status struct {
	Name      string
	Running   bool
	Protected bool
}

// State renders the running flag the way service/list shows it.
func (s Status) State() string {
	if s.Running {
		return "Running"
	}
	return "Inactive"
}

type entry struct {
	svc       Service
	protected bool
	mu        sync.Mutex // serializes lifecycle operations on this service
}

// Option configures a registration.
type Option func(*entry)

// WithProtected marks the service as protected regardless of its name.
func WithProtected() Option {
	return func(e *entry) { e.protected = true }
}

// Supervisor owns the set of registered services.
type Supervisor struct {
	mu                sync.RWMutex
	entries           map[string]*entry
	order             []string
	protectedPrefixes []string
	logger            *slog.Logger
}

// NewSupervisor creates a Supervisor. Services whose names start with any
// of protectedPrefixes are protected.
func NewSupervisor(protectedPrefixes []string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		entries:           make(map[string]*entry),
		protectedPrefixes: append([]string(nil), protectedPrefixes...),
		logger:            logger.With("component", "services"),
	}
}

// Register adds a service. Names are case-sensitive and must be unique.
func (s *Supervisor) Register(svc Service, opts ...Option) error {
	name := svc.Name()
	if name == "" {
		return fmt.Errorf("service name is required")
	}

	e := &entry{svc: svc}
	for _, opt := range opts {
		opt(e)
	}
	for _, prefix := range s.protectedPrefixes {
		if prefix != "" && strings.HasPrefix(name, prefix) {
			e.protected = true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	s.entries[name] = e
	s.order = append(s.order, name)

	s.logger.Debug("registered service", "service", name, "protected", e.protected)
	return nil
}

func (s *Supervisor) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	return e, nil
}

// List returns the status of every service in registration order.
func (s *Supervisor) List() []Status {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, name := range s.order {
		entries = append(entries, s.entries[name])
	}
	s.mu.RUnlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, Status{
			Name:      e.svc.Name(),
			Running:   e.svc.Running(),
			Protected: e.protected,
		})
	}
	return out
}

// Status returns the status of one service.
func (s *Supervisor) Status(name string) (Status, error) {
	e, err := s.lookup(name)
	if err != nil {
		return Status{}, err
	}
	return Status{Name: name, Running: e.svc.Running(), Protected: e.protected}, nil
}

// Start starts an inactive service.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.svc.Running() {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	if err := e.svc.Start(ctx); err != nil {
		s.logger.Error("service failed to start", "service", name, "error", err)
		return fmt.Errorf("starting %s: %w", name, err)
	}
	s.logger.Info("service started", "service", name)
	return nil
}

// Stop stops a running, unprotected service. Protection is checked before
// the running state, so a protected service always reports ErrProtectedService.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if e.protected {
		return fmt.Errorf("%w: %s", ErrProtectedService, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.svc.Running() {
		return fmt.Errorf("%w: %s", ErrNotRunning, name)
	}
	if err := e.svc.Stop(ctx); err != nil {
		s.logger.Error("service failed to stop", "service", name, "error", err)
		return fmt.Errorf("stopping %s: %w", name, err)
	}
	s.logger.Info("service stopped", "service", name)
	return nil
}

// Restart stops the service if it is running and starts it again.
// Protected services are refused.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if e.protected {
		return fmt.Errorf("%w: %s", ErrProtectedService, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.svc.Running() {
		if err := e.svc.Stop(ctx); err != nil {
			return fmt.Errorf("stopping %s: %w", name, err)
		}
	}
	if err := e.svc.Start(ctx); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	s.logger.Info("service restarted", "service", name)
	return nil
}

// IsProtected reports whether the named service is protected.
func (s *Supervisor) IsProtected(name string) (bool, error) {
	e, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	return e.protected, nil
}

// StartAll starts every registered service not named in skip, in
// registration order. It stops at the first failure.
func (s *Supervisor) StartAll(ctx context.Context, skip func(name string) bool) error {
	for _, st := range s.List() {
		if st.Running || (skip != nil && skip(st.Name)) {
			continue
		}
		if err := s.Start(ctx, st.Name); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			return err
		}
	}
	return nil
}

// StopAll stops every running service in reverse registration order,
// protected ones included. It is meant for process shutdown only.
func (s *Supervisor) StopAll(ctx context.Context) error {
	statuses := s.List()
	var errs []error
	for i := len(statuses) - 1; i >= 0; i-- {
		e, err := s.lookup(statuses[i].Name)
		if err != nil {
			continue
		}
		e.mu.Lock()
		if e.svc.Running() {
			if err := e.svc.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stopping %s: %w", statuses[i].Name, err))
			} else {
				s.logger.Info("service stopped", "service", statuses[i].Name)
			}
		}
		e.mu.Unlock()
	}
	return errors.Join(errs...)
}
