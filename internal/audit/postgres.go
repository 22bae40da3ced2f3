package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/pii"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id          BIGSERIAL PRIMARY KEY,
	event_type  TEXT        NOT NULL,
	request_id  TEXT        NOT NULL DEFAULT '',
	path        TEXT        NOT NULL DEFAULT '',
	client_ip   TEXT        NOT NULL DEFAULT '',
	severity    TEXT        NOT NULL DEFAULT 'info',
	findings    JSONB       NOT NULL DEFAULT '[]',
	signature   TEXT        NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events (created_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_event_type ON audit_events (event_type);
`

// PostgresStore persists the audit trail to PostgreSQL.
type PostgresStore struct {
	db     *sqlx.DB
	config *Config
	signer *Signer
	logger *zap.Logger
}

// NewPostgresStore connects to the database, configures the pool and
// ensures the schema exists.
func NewPostgresStore(config *Config, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &PostgresStore{
		db:     db,
		config: config,
		signer: NewSigner(config.SigningKey),
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("retention_days", config.RetentionDays),
	)

	return store, nil
}

// Record signs and inserts one event.
func (s *PostgresStore) Record(ctx context.Context, e *Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	s.signer.Sign(e)

	findings, err := json.Marshal(e.Findings)
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}

	query := `
		INSERT INTO audit_events (event_type, request_id, path, client_ip, severity, findings, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err = s.db.QueryRowContext(ctx, query,
		e.Type, e.RequestID, e.Path, e.ClientIP, e.Severity, findings, e.Signature, e.Timestamp,
	).Scan(&e.ID)
	if err != nil {
		s.logger.Error("Failed to record audit event",
			zap.Error(err),
			zap.String("event_type", e.Type),
		)
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}

// Query returns events matching the filter, oldest first.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]*Event, error) {
	var clauses []string
	var args []interface{}
	arg := 1

	add := func(clause string, value interface{}) {
		clauses = append(clauses, fmt.Sprintf(clause, arg))
		args = append(args, value)
		arg++
	}

	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <= $%d", f.Until)
	}
	if f.Type != "" {
		add("event_type = $%d", f.Type)
	}
	if f.Severity != "" {
		add("severity = $%d", f.Severity)
	}

	query := `SELECT id, event_type, request_id, path, client_ip, severity, findings, signature, created_at
		FROM audit_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", arg)
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit query failed: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var findings []byte
		err := rows.Scan(&e.ID, &e.Type, &e.RequestID, &e.Path, &e.ClientIP,
			&e.Severity, &findings, &e.Signature, &e.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if len(findings) > 0 {
			var decoded []pii.Finding
			if err := json.Unmarshal(findings, &decoded); err == nil {
				e.Findings = decoded
			}
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Stats summarizes the stored trail.
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByType:     make(map[string]int64),
		BySeverity: make(map[string]int64),
	}

	if err := s.db.GetContext(ctx, &stats.TotalEvents, "SELECT COUNT(*) FROM audit_events"); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	cutoff := time.Now().Add(-24 * time.Hour)
	if err := s.db.GetContext(ctx, &stats.Last24h,
		"SELECT COUNT(*) FROM audit_events WHERE created_at > $1", cutoff); err != nil {
		return nil, fmt.Errorf("failed to count recent audit events: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT event_type, severity, COUNT(*) FROM audit_events WHERE created_at > $1 GROUP BY event_type, severity", cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate audit events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventType, severity string
		var count int64
		if err := rows.Scan(&eventType, &severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan audit aggregate: %w", err)
		}
		stats.ByType[eventType] += count
		stats.BySeverity[severity] += count
	}
	return stats, rows.Err()
}

// Cleanup deletes events older than the retention window.
func (s *PostgresStore) Cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	res, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE created_at < $1", cutoff)
	if err != nil {
		return fmt.Errorf("audit cleanup failed: %w", err)
	}

	if deleted, err := res.RowsAffected(); err == nil && deleted > 0 {
		s.logger.Info("Audit retention applied",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging.
func maskDatabaseURL(url string) string {
	if !strings.Contains(url, "@") {
		return url
	}
	parts := strings.SplitN(url, "@", 2)
	userPart := parts[0]
	if idx := strings.LastIndex(userPart, ":"); idx > strings.Index(userPart, "//") {
		userPart = userPart[:idx+1] + "***"
	}
	return userPart + "@" + parts[1]
}
