package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders capture events as slog records, one per event, at
// a fixed level (Debug unless changed with WithLevel).
type SlogAdapter struct {
	logger *slog.Logger
	level  slog.Level
}

// NewSlogAdapter returns an adapter writing to logger at Debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, level: slog.LevelDebug}
}

// WithLevel returns a copy of the adapter that logs at level.
func (a *SlogAdapter) WithLevel(level slog.Level) *SlogAdapter {
	return &SlogAdapter{logger: a.logger, level: level}
}

// Log implements Logger.
func (a *SlogAdapter) Log(event Event) {
	ctx := context.Background()
	if !a.logger.Enabled(ctx, a.level) {
		return
	}

	attrs := make([]slog.Attr, 0, 12)
	attrs = append(attrs,
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	)
	attrs = appendNonEmpty(attrs, "player_id", event.PlayerID)
	attrs = appendNonEmpty(attrs, "zone_id", event.ZoneID)

	switch {
	case event.Message != nil:
		attrs = messageAttrs(attrs, event.Message)
	case event.StateChange != nil:
		attrs = stateAttrs(attrs, event.StateChange)
	case event.ControlMsg != nil:
		attrs = controlAttrs(attrs, event.ControlMsg)
	case event.Sync != nil:
		s := event.Sync
		attrs = append(attrs,
			slog.String("action", s.Action),
			slog.String("status", s.Status),
			slog.Int("pending", s.Pending))
		attrs = appendNonEmpty(attrs, "resolution", s.Resolution)
	case event.Geofence != nil:
		g := event.Geofence
		attrs = append(attrs, slog.String("kind", g.Kind), slog.String("cell", g.Cell))
		if g.Distance > 0 {
			attrs = append(attrs, slog.Float64("distance_m", g.Distance))
		}
	case event.Error != nil:
		e := event.Error
		attrs = append(attrs,
			slog.String("error_layer", e.Layer.String()),
			slog.String("error_msg", e.Message))
		attrs = appendNonEmpty(attrs, "error_context", e.Context)
		if e.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *e.Code))
		}
	}

	a.logger.LogAttrs(ctx, a.level, "protocol", attrs...)
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

func messageAttrs(attrs []slog.Attr, m *MessageEvent) []slog.Attr {
	attrs = append(attrs, slog.String("msg_type", m.Type))
	attrs = appendNonEmpty(attrs, "msg_id", m.MessageID)
	if m.Size > 0 {
		attrs = append(attrs, slog.Int("size", m.Size))
	}
	if m.RetryCount > 0 {
		attrs = append(attrs, slog.Int("retry", m.RetryCount))
	}
	if m.Queued {
		attrs = append(attrs, slog.Bool("queued", true))
	}
	if m.Duplicate {
		attrs = append(attrs, slog.Bool("duplicate", true))
	}
	return attrs
}

func stateAttrs(attrs []slog.Attr, sc *StateChangeEvent) []slog.Attr {
	attrs = append(attrs,
		slog.String("entity", sc.Entity.String()),
		slog.String("old_state", sc.OldState),
		slog.String("new_state", sc.NewState))
	attrs = appendNonEmpty(attrs, "reason", sc.Reason)
	if sc.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", sc.Attempt), slog.Duration("delay", sc.Delay))
	}
	return attrs
}

func controlAttrs(attrs []slog.Attr, c *ControlMsgEvent) []slog.Attr {
	attrs = append(attrs, slog.String("ctrl_type", c.Type.String()))
	if c.CloseCode != nil {
		attrs = append(attrs, slog.Int("close_code", *c.CloseCode))
	}
	if c.Latency != nil {
		attrs = append(attrs, slog.Duration("latency", *c.Latency))
	}
	return attrs
}

var _ Logger = (*SlogAdapter)(nil)
