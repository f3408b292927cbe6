// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ConversationIDKey is the context key for the external conversation id
	ConversationIDKey contextKey = "conversation_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id and conversation_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if convID, ok := ctx.Value(ConversationIDKey).(string); ok && convID != "" {
		newLogger = newLogger.WithConversationID(convID)
	}

	return newLogger
}

// WithConversationID returns a logger scoped to one external conversation.
func (l *Logger) WithConversationID(conversationID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("conversation_id", conversationID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// WebhookReceived logs an inbound call-completion delivery.
func (l *Logger) WebhookReceived(conversationID, eventType string, stored bool) {
	l.Info("webhook_received",
		slog.String("conversation_id", conversationID),
		slog.String("event_type", eventType),
		slog.Bool("stored", stored),
	)
}

// ProcessingOutcome logs the result of a completion processor run.
func (l *Logger) ProcessingOutcome(conversationID, status string, err error) {
	if err != nil {
		l.Error("processing_outcome",
			slog.String("conversation_id", conversationID),
			slog.String("status", status),
			slog.String("error", err.Error()),
		)
		return
	}
	l.Info("processing_outcome",
		slog.String("conversation_id", conversationID),
		slog.String("status", status),
	)
}

// ReconcileReport logs the aggregate counters of a sweep.
func (l *Logger) ReconcileReport(checked, reconciled, callRecords, leads, backfilled, errors int) {
	l.Info("reconcile_report",
		slog.Int("checked", checked),
		slog.Int("reconciled", reconciled),
		slog.Int("call_records_created", callRecords),
		slog.Int("leads_created", leads),
		slog.Int("summaries_backfilled", backfilled),
		slog.Int("errors", errors),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}
