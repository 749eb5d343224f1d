package backend

import (
	"slices"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	registryMu sync.Mutex
	registered = make(map[string]Backend)
)

// Register a backend under the given name. Backends usually register themselves in their package init(), so
// importing the package for side effects (import _ "...") is enough to make it available.
//
// It returns an error if the name is empty or already taken by a different backend.
func Register(name string, b Backend) error {
	if name == "" || b == nil {
		return errors.Errorf("backend.Register requires a name and a non-nil backend, got name=%q, backend=%v", name, b)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if prev, found := registered[name]; found && prev != b {
		return errors.Errorf("backend %q already registered", name)
	}
	registered[name] = b
	klog.V(1).Infof("registered compute backend %q", name)
	return nil
}

// Lookup returns the backend registered with the given name.
func Lookup(name string) (Backend, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	b, found := registered[name]
	if !found {
		return nil, errors.Errorf("compute backend %q not registered (registered backends: %q)", name, namesLocked())
	}
	return b, nil
}

// Names returns the sorted names of the registered backends.
func Names() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
