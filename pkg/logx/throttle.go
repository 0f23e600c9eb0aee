package logx

import (
	"sync"

	"golang.org/x/time/rate"
)

// Throttle rate-limits repeated log lines by key.
//
// Typical use is a failure that recurs every poll interval (probe timeout,
// feed fetch error): the first line per key passes, later ones are counted
// and folded into the next allowed line as a "suppressed" field.
type Throttle struct {
	log   Logger
	every rate.Limit
	burst int

	mu      sync.Mutex
	keys    map[string]*throttleKey
	maxKeys int
}

type throttleKey struct {
	lim        *rate.Limiter
	suppressed int
}

// NewThrottle creates a Throttle that allows roughly one line per key per
// intervalSeconds, with a burst of one.
func NewThrottle(log Logger, perSecond float64) *Throttle {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Throttle{
		log:     log,
		every:   rate.Limit(perSecond),
		burst:   1,
		keys:    map[string]*throttleKey{},
		maxKeys: 128,
	}
}

// Warn logs a warn-level line for key, unless the key is currently limited.
func (t *Throttle) Warn(key, msg string, fields ...Field) {
	t.emit(key, LevelWarn, msg, fields...)
}

// Error logs an error-level line for key, unless the key is currently limited.
func (t *Throttle) Error(key, msg string, fields ...Field) {
	t.emit(key, LevelError, msg, fields...)
}

func (t *Throttle) emit(key string, level Level, msg string, fields ...Field) {
	if t == nil {
		return
	}
	t.mu.Lock()
	k := t.keys[key]
	if k == nil {
		if len(t.keys) >= t.maxKeys {
			// Unbounded key churn would leak limiters; reset wholesale.
			t.keys = map[string]*throttleKey{}
		}
		k = &throttleKey{lim: rate.NewLimiter(t.every, t.burst)}
		t.keys[key] = k
	}
	allowed := k.lim.Allow()
	suppressed := k.suppressed
	if allowed {
		k.suppressed = 0
	} else {
		k.suppressed++
	}
	t.mu.Unlock()

	if !allowed {
		return
	}
	if suppressed > 0 {
		fields = append(fields, Int("suppressed", suppressed))
	}
	switch level {
	case LevelError:
		t.log.Error(msg, fields...)
	default:
		t.log.Warn(msg, fields...)
	}
}
