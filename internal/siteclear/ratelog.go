package siteclear

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// rateLimitedLogger drops messages logged within interval of the last one.
type rateLimitedLogger struct {
	mu       sync.Mutex
	lastAt   time.Time
	interval time.Duration
	log      logrus.FieldLogger
}

func newRateLimitedLogger(log logrus.FieldLogger, interval time.Duration) *rateLimitedLogger {
	return &rateLimitedLogger{log: log, interval: interval}
}

func (l *rateLimitedLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if !l.lastAt.IsZero() && now.Sub(l.lastAt) < l.interval {
		return
	}
	l.lastAt = now
	l.log.Warnf(format, args...)
}
