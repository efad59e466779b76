package goIdentity

import (
	"context"

	"github.com/MrEthical07/goIdentity/session"
)

type clientIPContextKey struct{}
type userAgentContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for the registration throttle, audit events and session metadata when
// the request carries none.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

// metadataFor fills empty fields of md from ctx.
func metadataFor(ctx context.Context, md session.Metadata) session.Metadata {
	if md.IP == "" {
		md.IP = clientIPFromContext(ctx)
	}
	if md.UserAgent == "" {
		md.UserAgent = userAgentFromContext(ctx)
	}
	return md
}
