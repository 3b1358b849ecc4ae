// ABOUTME: Audit log entity and store methods for tracking privileged actions
// ABOUTME: Records who booted, re-credentialed, reloaded or stopped what

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction names a privileged operation.
type AuditAction string

const (
	AuditBootSession    AuditAction = "boot_session"
	AuditSetCredential  AuditAction = "set_credential"
	AuditServiceStart   AuditAction = "service_start"
	AuditServiceStop    AuditAction = "service_stop"
	AuditServiceRestart AuditAction = "service_restart"
	AuditReload         AuditAction = "reload"
	AuditShutdown       AuditAction = "shutdown"
	AuditTeleportHome   AuditAction = "teleport_home"
)

const (
	// auditTimeFormat is fixed-width so that timestamps sort lexically.
	auditTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

	auditColumns = "audit_id, actor_id, actor_name, action, target_type, target_id, ts, detail_json"

	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditEntry is one privileged action. ActorName is captured when the
// action happens so renames do not rewrite history.
type AuditEntry struct {
	ID         string
	ActorID    int64
	ActorName  string
	Action     AuditAction
	TargetType string // actor, session, service or process
	TargetID   string
	Timestamp  time.Time
	Detail     map[string]any
}

// AuditFilter narrows ListAuditLog. Nil fields are ignored.
type AuditFilter struct {
	Since      *time.Time
	Until      *time.Time
	ActorID    *int64
	Action     *AuditAction
	TargetType *string
	TargetID   *string
	Limit      int // 0 means defaultAuditLimit; capped at maxAuditLimit
}

// AppendAuditLog stores e, assigning an ID and timestamp when missing.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	prepareAuditEntry(e)

	detail, err := encodeAuditDetail(e.Detail)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_log ("+auditColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.ActorID, e.ActorName, string(e.Action),
		e.TargetType, e.TargetID, e.Timestamp.UTC().Format(auditTimeFormat), detail,
	); err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("audit entry written",
		"id", e.ID,
		"actor", e.ActorName,
		"action", e.Action,
		"target", e.TargetType+"/"+e.TargetID,
	)
	return nil
}

func prepareAuditEntry(e *AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

// encodeAuditDetail returns the JSON column value; nil detail stays NULL.
func encodeAuditDetail(detail map[string]any) (sql.NullString, error) {
	if detail == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encoding audit detail: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func normalizeAuditLimit(limit int) int {
	if limit <= 0 {
		return defaultAuditLimit
	}
	return min(limit, maxAuditLimit)
}

// where renders the filter as a SQL condition over audit_log plus its
// bind values. Only the fields that are set contribute a term; an empty
// filter yields an empty clause.
func (f AuditFilter) where() (string, []any) {
	var terms []string
	var args []any
	add := func(term string, v any) {
		terms = append(terms, term)
		args = append(args, v)
	}

	if f.ActorID != nil {
		add("actor_id = ?", *f.ActorID)
	}
	if f.Action != nil {
		add("action = ?", string(*f.Action))
	}
	if f.TargetType != nil {
		add("target_type = ?", *f.TargetType)
	}
	if f.TargetID != nil {
		add("target_id = ?", *f.TargetID)
	}
	if f.Since != nil {
		add("ts >= ?", f.Since.UTC().Format(auditTimeFormat))
	}
	if f.Until != nil {
		add("ts <= ?", f.Until.UTC().Format(auditTimeFormat))
	}

	if len(terms) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(terms, " AND "), args
}

// Matches reports whether e passes every condition set on the filter.
// Time bounds are inclusive.
func (f AuditFilter) Matches(e AuditEntry) bool {
	switch {
	case f.ActorID != nil && e.ActorID != *f.ActorID,
		f.Action != nil && e.Action != *f.Action,
		f.TargetType != nil && e.TargetType != *f.TargetType,
		f.TargetID != nil && e.TargetID != *f.TargetID,
		f.Since != nil && e.Timestamp.Before(*f.Since),
		f.Until != nil && e.Timestamp.After(*f.Until):
		return false
	}
	return true
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditEntry(row rowScanner) (AuditEntry, error) {
	var (
		e      AuditEntry
		action string
		ts     string
		detail sql.NullString
	)
	err := row.Scan(&e.ID, &e.ActorID, &e.ActorName, &action, &e.TargetType, &e.TargetID, &ts, &detail)
	if err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}
	e.Action = AuditAction(action)

	if e.Timestamp, err = time.Parse(auditTimeFormat, ts); err != nil {
		return e, fmt.Errorf("audit entry %s: bad timestamp %q: %w", e.ID, ts, err)
	}
	if detail.Valid {
		if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
			return e, fmt.Errorf("audit entry %s: decoding detail: %w", e.ID, err)
		}
	}
	return e, nil
}

// ListAuditLog returns up to f.Limit entries matching f, newest first.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	clause, args := f.where()
	query := "SELECT " + auditColumns + " FROM audit_log" + clause + " ORDER BY ts DESC LIMIT ?"
	args = append(args, normalizeAuditLimit(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	entries := []AuditEntry{}
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
