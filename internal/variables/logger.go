package variables

import "time"

// Logger records diagnostics such as cycle warnings. It matches
// logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Observer receives resolution events. internal/metrics provides a Prometheus
// backed implementation.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
	CacheShared(name string)
	CycleDetected(name string)
	Resolved(name string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)                       {}
func (nopObserver) CacheMiss(string)                      {}
func (nopObserver) CacheShared(string)                    {}
func (nopObserver) CycleDetected(string)                  {}
func (nopObserver) Resolved(string, time.Duration, error) {}
