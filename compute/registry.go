package compute

import "github.com/gomlx/gocompute/backend"

// RegisterBackend makes a backend available by name, see GetBackend.
//
// Backend packages usually register themselves on import, e.g. importing github.com/gomlx/gocompute/host
// registers the "host" backend.
func RegisterBackend(name string, b backend.Backend) error {
	return backend.Register(name, b)
}

// GetBackend returns the backend registered with the given name.
//
// There is no default backend: callers choose one explicitly and thread the Context created from it.
func GetBackend(name string) (backend.Backend, error) {
	return backend.Lookup(name)
}

// Backends returns the names of the registered backends.
func Backends() []string {
	return backend.Names()
}
