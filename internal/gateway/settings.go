package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/pii"
	"github.com/veilhq/veil/internal/websocket"
)

// previewSample is the demo text shown on the settings screen. It carries
// one instance of every supported category.
const previewSample = "Dr. Jane Smith lives at 123 Main Street, Springfield, IL. " +
	"ZIP 62704, SSN 123-45-6789, card 4111 1111 1111 1111, " +
	"call (555) 123-4567 or write jane.smith@example.com."

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// handleGetSettings returns the current privacy policy state
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.policy.Snapshot())
}

// handleSetLevel updates the masking level
func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.policy.SetLevel(pii.Level(req.Level)); err != nil {
		if errors.Is(err, pii.ErrUnknownLevel) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update level")
		return
	}

	s.logger.Info("Masking level changed", zap.String("level", req.Level))
	s.broadcastPolicyChange(r, "level", "", req.Level)

	writeJSON(w, http.StatusOK, s.policy.Snapshot())
}

// handleToggleCategory flips the enabled flag of one category
func (s *Server) handleToggleCategory(w http.ResponseWriter, r *http.Request) {
	category := pii.Category(mux.Vars(r)["category"])

	if err := s.policy.ToggleCategory(category); err != nil {
		if errors.Is(err, pii.ErrUnknownCategory) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to toggle category")
		return
	}

	enabled := s.policy.CategoryEnabled(category)
	s.logger.Info("Category toggled",
		zap.String("category", string(category)),
		zap.Bool("enabled", enabled),
	)
	value := "disabled"
	if enabled {
		value = "enabled"
	}
	s.broadcastPolicyChange(r, "category", string(category), value)

	writeJSON(w, http.StatusOK, s.policy.Snapshot())
}

// handleSetConsent updates the data processing consent flag
func (s *Server) handleSetConsent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Granted bool `json:"granted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.policy.SetConsent(req.Granted)

	value := "revoked"
	if req.Granted {
		value = "granted"
	}
	s.logger.Info("Consent updated", zap.String("consent", value))
	s.broadcastPolicyChange(r, "consent", "", value)

	writeJSON(w, http.StatusOK, s.policy.Snapshot())
}

// handlePreview masks a sample text with the current policy. Unlike the
// proxy path, disabled categories are left untouched here.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Text == "" {
		req.Text = previewSample
	}

	opts, err := s.policy.ResolveOptions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve masking options")
		return
	}

	masked := s.engine.MaskTextFiltered(req.Text, opts, s.policy.CategoryEnabled)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"level":  s.policy.Level(),
		"input":  req.Text,
		"masked": masked,
	})
}

// handleClassify reports which categories match a text without masking it
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	classification := s.engine.Classify(req.Text)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensitive":  classification.HasMatch,
		"categories": classification.Categories,
		"findings":   s.engine.Findings(req.Text),
	})
}

// handleDetokenize resolves a vault token back to the original value.
// Requires consent and a configured token vault.
func (s *Server) handleDetokenize(w http.ResponseWriter, r *http.Request) {
	if !s.policy.Consent() {
		writeError(w, http.StatusForbidden, "consent required to resolve tokens")
		return
	}
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "token vault is not configured")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	value, err := s.resolver.Resolve(ctx, req.Token)
	if err != nil {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}

	if s.audit != nil {
		event := &audit.Event{
			Type:      audit.EventTokenResolved,
			Timestamp: time.Now(),
			RequestID: getRequestID(r.Context()),
			Path:      r.URL.Path,
			ClientIP:  getClientIP(r),
			Severity:  audit.SeverityWarning,
		}
		if err := s.audit.Record(ctx, event); err != nil {
			s.logger.Warn("Failed to record audit event", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"token": req.Token,
		"value": value,
	})
}

// handleAuditEvents returns recent audit events
func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit trail is not configured")
		return
	}

	filter := audit.Filter{Limit: 100}
	if t := r.URL.Query().Get("type"); t != "" {
		filter.Type = t
	}
	if sev := r.URL.Query().Get("severity"); sev != "" {
		filter.Severity = sev
	}

	events, err := s.audit.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("Audit query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// handleAuditStats returns aggregate audit statistics
func (s *Server) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit trail is not configured")
		return
	}

	stats, err := s.audit.Stats(r.Context())
	if err != nil {
		s.logger.Error("Audit stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "audit stats failed")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// broadcastPolicyChange records and broadcasts a policy change
func (s *Server) broadcastPolicyChange(r *http.Request, field, category, value string) {
	requestID := getRequestID(r.Context())

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypePolicyChange,
		Timestamp: time.Now(),
		RequestID: requestID,
		Data: websocket.PolicyChangeEvent{
			Field:    field,
			Category: category,
			Value:    value,
		},
	})

	if s.audit == nil {
		return
	}

	event := &audit.Event{
		Type:      audit.EventPolicyChange,
		Timestamp: time.Now(),
		RequestID: requestID,
		Path:      r.URL.Path,
		ClientIP:  getClientIP(r),
		Severity:  audit.SeverityInfo,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("Failed to record audit event", zap.Error(err))
	}
}
