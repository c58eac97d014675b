package eventstore

// Logger is the minimal structured-logging sink the core depends on for its
// advisory warnings (cache-write failures, dedup-store unavailability, and
// the like — spec.md never treats logging as authoritative, so the core
// only ever needs a narrow leveled-logging seam, not a logging framework).
// Concrete applications inject a zerolog-backed implementation (see
// internal/logger); tests use NopLogger or a recording stub.
//
// fields is a flat key/value list, mirroring zerolog's chained .Str/.Err
// call style without forcing the core to import zerolog directly — keeping
// dependency direction out of the core per spec.md §5's "no mutable global
// state" posture.
type Logger interface {
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

// NopLogger discards everything. The zero value is ready to use.
type NopLogger struct{}

func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
