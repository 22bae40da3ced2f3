package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/veilhq/veil/internal/pii"
)

// Event types recorded by the gateway.
const (
	EventDetection     = "pii_detection"
	EventPolicyChange  = "policy_change"
	EventTokenResolved = "token_resolved"
)

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Event is one audit record. It carries category tags and counts but
// never the matched text itself.
type Event struct {
	ID        int64         `json:"id" db:"id"`
	Type      string        `json:"type" db:"event_type"`
	Timestamp time.Time     `json:"timestamp" db:"created_at"`
	RequestID string        `json:"request_id" db:"request_id"`
	Path      string        `json:"path" db:"path"`
	ClientIP  string        `json:"client_ip" db:"client_ip"`
	Severity  string        `json:"severity" db:"severity"`
	Findings  []pii.Finding `json:"findings" db:"-"`
	Signature string        `json:"signature" db:"signature"`
}

// Filter narrows a Query.
type Filter struct {
	Since    time.Time
	Until    time.Time
	Type     string
	Severity string
	Limit    int
}

// Stats summarizes the stored trail.
type Stats struct {
	TotalEvents int64            `json:"total_events"`
	Last24h     int64            `json:"events_last_24h"`
	ByType      map[string]int64 `json:"events_by_type"`
	BySeverity  map[string]int64 `json:"events_by_severity"`
}

// Config contains audit trail configuration.
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	RetentionDays   int           `yaml:"retention_days" mapstructure:"retention_days"`
	MaxEvents       int           `yaml:"max_events" mapstructure:"max_events"`
	SigningKey      string        `yaml:"signing_key" mapstructure:"signing_key"`
}

// Signer produces and checks per-event HMAC signatures so a tampered
// trail is detectable.
type Signer struct {
	key []byte
}

// NewSigner creates a signer over the given key.
func NewSigner(key string) *Signer {
	return &Signer{key: []byte(key)}
}

// Sign computes the event signature over its canonical payload and
// stores it on the event.
func (s *Signer) Sign(e *Event) {
	e.Signature = s.mac(e)
}

// Verify reports whether the event's signature matches its payload.
func (s *Signer) Verify(e *Event) bool {
	return hmac.Equal([]byte(e.Signature), []byte(s.mac(e)))
}

func (s *Signer) mac(e *Event) string {
	findings, _ := json.Marshal(e.Findings)
	payload := e.Type + "|" +
		e.Timestamp.UTC().Format(time.RFC3339Nano) + "|" +
		e.RequestID + "|" +
		e.Path + "|" +
		e.Severity + "|" +
		string(findings)

	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
