package persistence

// Mode identifies how a database is backed. It is fixed when the database is
// created and carried by the engine, the query handle and the registry entry.
type Mode int

const (
	// ModeLocal is an embedded engine running in the calling process.
	ModeLocal Mode = iota
	// ModeWorker is an embedded engine owned by a background worker and reached
	// through message passing.
	ModeWorker
	// ModeProxy forwards every statement to a caller-supplied function. There is
	// no local engine.
	ModeProxy
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeWorker:
		return "worker"
	case ModeProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// HasEngine reports whether databases of this mode own an embedded engine.
func (m Mode) HasEngine() bool {
	return m == ModeLocal || m == ModeWorker
}
