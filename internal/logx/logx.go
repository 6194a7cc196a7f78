// Package logx binds profile, tab and session fields to loggers.
package logx

import (
	"context"

	"pkt.systems/ait/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	profileKey contextKey = iota
	tabKey
)

// WithProfile annotates the logger with the profile id if present.
func WithProfile(ctx context.Context, profileID schema.ProfileID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if profileID != "" {
		if current, ok := ctx.Value(profileKey).(schema.ProfileID); ok && current == profileID {
			return log
		}
		log = log.With("profile", profileID)
	}
	return log
}

// WithProfileTab annotates the logger with profile and tab identifiers.
func WithProfileTab(ctx context.Context, profileID schema.ProfileID, tabID schema.TabID) pslog.Logger {
	log := WithProfile(ctx, profileID)
	if tabID != "" {
		if current, ok := ctx.Value(tabKey).(schema.TabID); ok && current == tabID {
			return log
		}
		log = log.With("tab", tabID)
	}
	return log
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", sessionID)
	}
	return log
}

// ContextWithProfile stores the profile marker on the context for log de-duplication.
func ContextWithProfile(ctx context.Context, profileID schema.ProfileID) context.Context {
	if ctx == nil || profileID == "" {
		return ctx
	}
	return context.WithValue(ctx, profileKey, profileID)
}

// ContextWithTab stores the tab marker on the context for log de-duplication.
func ContextWithTab(ctx context.Context, tabID schema.TabID) context.Context {
	if ctx == nil || tabID == "" {
		return ctx
	}
	return context.WithValue(ctx, tabKey, tabID)
}

// ContextWithProfileTabLogger attaches the logger and profile/tab markers to the context.
func ContextWithProfileTabLogger(ctx context.Context, log pslog.Logger, profileID schema.ProfileID, tabID schema.TabID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithTab(ContextWithProfile(ctx, profileID), tabID)
}
