// ABOUTME: Replaces an actor's login credential on behalf of a controlling invoker
// ABOUTME: Validates input before lookup, checks control, commits, audits and notifies

package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/resolve"
	"github.com/2389/coven-keep/internal/store"
)

var (
	// ErrMissingTarget indicates no target actor was named.
	ErrMissingTarget = errors.New("missing target")
	// ErrMissingCredential indicates an empty new credential.
	ErrMissingCredential = errors.New("missing credential")
	// ErrNotAuthenticatable indicates the target cannot log in.
	ErrNotAuthenticatable = errors.New("target is not a player")
	// ErrSuperuserShielded indicates the target is a superuser.
	ErrSuperuserShielded = errors.New("target is a superuser")
	// ErrNotControlled indicates the invoker does not control the target.
	ErrNotControlled = errors.New("target not controlled by invoker")
	// ErrCredentialTooLong indicates a credential longer than MaxCredentialBytes.
	ErrCredentialTooLong = errors.New("credential too long")
	// ErrCommitFailed wraps a failure to hash or store the new credential.
	ErrCommitFailed = errors.New("credential not saved")
)

// MaxCredentialBytes is the longest credential bcrypt accepts.
const MaxCredentialBytes = 72

// Store is the persistence the manager needs.
type Store interface {
	UpdateActorPassword(ctx context.Context, id int64, hash string) error
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// Notifier delivers a message to every live session of an actor.
type Notifier interface {
	SendToActor(actorID int64, msg string) int
}

// Hasher turns a plaintext credential into its stored form.
type Hasher func(password string) (string, error)

// Outcome describes a committed credential change.
type Outcome struct {
	Target   *store.Actor
	Notified int // sessions of the target that received the notice
}

// Manager performs credential changes.
type Manager struct {
	resolver *resolve.Resolver
	store    Store
	notifier Notifier
	hash     Hasher
	logger   *slog.Logger
}

// NewManager creates a Manager using bcrypt for hashing.
func NewManager(resolver *resolve.Resolver, st Store, notifier Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		resolver: resolver,
		store:    st,
		notifier: notifier,
		hash:     auth.HashPassword,
		logger:   logger.With("component", "credentials"),
	}
}

// WithHasher replaces the hash function (tests use a cheap one).
func (m *Manager) WithHasher(h Hasher) *Manager {
	m.hash = h
	return m
}

// SetCredential replaces the credential of the actor named by targetText.
// Resolution errors from the resolver are returned unchanged.
func (m *Manager) SetCredential(ctx context.Context, invoker *store.Actor, targetText, newCredential string) (*Outcome, error) {
	targetText = strings.TrimSpace(targetText)
	if targetText == "" {
		return nil, ErrMissingTarget
	}
	if newCredential == "" {
		return nil, ErrMissingCredential
	}
	if len(newCredential) > MaxCredentialBytes {
		return nil, ErrCredentialTooLong
	}

	target, err := m.resolver.Actor(ctx, targetText)
	if err != nil {
		return nil, err
	}

	if !target.Player {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthenticatable, target.Name)
	}
	if target.Superuser {
		m.logger.Warn("credential change refused for superuser",
			"invoker", invoker.Name, "target", target.Name)
		return nil, fmt.Errorf("%w: %s", ErrSuperuserShielded, target.Name)
	}
	if !invoker.Controls(target) {
		m.logger.Info("credential change refused, target not controlled",
			"invoker", invoker.Name, "target", target.Name)
		return nil, fmt.Errorf("%w: %s", ErrNotControlled, target.Name)
	}

	hash, err := m.hash(newCredential)
	if err != nil {
		return nil, fmt.Errorf("%w: hashing: %w", ErrCommitFailed, err)
	}
	if err := m.store.UpdateActorPassword(ctx, target.ID, hash); err != nil {
		return nil, fmt.Errorf("%w: saving: %w", ErrCommitFailed, err)
	}
	target.PasswordHash = hash

	m.logger.Info("credential changed", "invoker", invoker.Name, "target", target.Name, "target_id", target.ID)

	if err := m.store.AppendAuditLog(ctx, &store.AuditEntry{
		ActorID:    invoker.ID,
		ActorName:  invoker.Name,
		Action:     store.AuditSetCredential,
		TargetType: "actor",
		TargetID:   target.Ref(),
	}); err != nil {
		m.logger.Error("failed to audit credential change", "error", err)
	}

	out := &Outcome{Target: target}
	if target.ID != invoker.ID && m.notifier != nil {
		out.Notified = m.notifier.SendToActor(target.ID, fmt.Sprintf("%s has changed your password.", invoker.Name))
	}
	return out, nil
}
