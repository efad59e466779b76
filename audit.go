package goIdentity

import (
	"io"

	"github.com/MrEthical07/goIdentity/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one account-security audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink drops every event.
type NoOpSink = audit.NoOpSink

// NewChannelSink returns a sink that buffers events in a channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewZapSink logs events through logger.
func NewZapSink(logger *zap.Logger) *audit.ZapSink {
	return audit.NewZapSink(logger)
}
