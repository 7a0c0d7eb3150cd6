// Package audit emits structured security-event records for the consent and
// token lifecycle. Records are append-only observations; they never affect
// the outcome of the operation that produced them.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/fablekids/auth/pkg/slogx"
)

// Actions recorded by the authorization server.
const (
	ActionAuthorizeIssued    = "authorize.code_issued"
	ActionAuthorizePaused    = "authorize.consent_pending"
	ActionTokenIssued        = "token.issued"
	ActionTokenRefreshed     = "token.refreshed"
	ActionTokenReuseDetected = "token.reuse_detected"
	ActionTokenRevoked       = "token.revoked"
	ActionConsentGranted     = "consent.granted"
	ActionConsentRevoked     = "consent.revoked"
	ActionKeyRotated         = "key.rotated"
	ActionKeyRetired         = "key.retired"
)

// Record is one audit event. CorrelationID ties the event back to the HTTP
// request that caused it.
type Record struct {
	Action        string
	Actor         string // subject performing the action; empty for system actions
	SubjectID     string // subject the action is about (e.g. the child)
	ClientID      string
	Scopes        []string
	CorrelationID string
	At            time.Time
}

// Sink receives audit records. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, r Record)
}

// SlogSink writes audit records as structured log lines. It is the default
// sink; deployments that ship events elsewhere wrap or replace it.
type SlogSink struct {
	Logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{Logger: logger}
}

func (s *SlogSink) Emit(ctx context.Context, r Record) {
	logger := s.Logger
	if logger == nil {
		logger = slogx.FromContext(ctx)
	}
	if r.At.IsZero() {
		r.At = time.Now().UTC()
	}
	if r.CorrelationID == "" {
		r.CorrelationID = slogx.CorrelationIDFromContext(ctx)
	}

	attrs := []slog.Attr{
		slog.String("action", r.Action),
		slog.Time("at", r.At),
	}
	if r.Actor != "" {
		attrs = append(attrs, slog.String("actor", r.Actor))
	}
	if r.SubjectID != "" {
		attrs = append(attrs, slog.String("subject_id", r.SubjectID))
	}
	if r.ClientID != "" {
		attrs = append(attrs, slog.String("client_id", r.ClientID))
	}
	if len(r.Scopes) > 0 {
		attrs = append(attrs, slog.Any("scopes", r.Scopes))
	}
	if r.CorrelationID != "" {
		attrs = append(attrs, slog.String("correlation_id", r.CorrelationID))
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

// Nop discards every record. Useful in tests.
type Nop struct{}

func (Nop) Emit(context.Context, Record) {}
