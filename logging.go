package segmap

import (
	"fmt"
	"log/slog"
)

// logger is a thin facade over *slog.Logger, in the shape of
// small-frappuccino-discordcore's pkg/log package: one place that knows how
// to build a structured record, leaving the handler (and whether to rotate
// any file at all) entirely up to whatever the embedding application wired
// into slog.Default. A library has no log file of its own to own or rotate,
// so unlike that package we never construct a handler ourselves.
type logger struct {
	sl *slog.Logger
}

func newLogger(sl *slog.Logger) *logger {
	if sl == nil {
		sl = slog.Default()
	}
	return &logger{sl: sl}
}

// removalListenerPanic logs a recovered panic from a RemovalListener. Per
// the error-handling design, listener failures are logged and swallowed:
// they must never affect map state or propagate to the caller that
// triggered the removal.
func (l *logger) removalListenerPanic(n RemovalNotification, r any) {
	l.sl.Error("segmap: removal listener panicked",
		slog.Any("cause", n.Cause),
		slog.Any("key", n.Key),
		slog.String("recovered", fmt.Sprint(r)),
	)
}
