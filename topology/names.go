package topology

import (
	"slices"
	"strconv"
	"strings"
	"sync"
)

// Names is the set of display names in use in the topology being edited.
// It lives only for the editing session.
type Names struct {
	mu    sync.Mutex
	names []string
}

// NewNames creates a name set seeded with names
func NewNames(names ...string) *Names {
	n := &Names{}
	for _, name := range names {
		n.Register(name)
	}
	return n
}

// Contains reports whether name is taken
func (n *Names) Contains(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Contains(n.names, name)
}

// Register marks name as taken
func (n *Names) Register(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !slices.Contains(n.names, name) {
		n.names = append(n.names, name)
	}
}

// Release frees name
func (n *Names) Release(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if i := slices.Index(n.names, name); i >= 0 {
		n.names = slices.Delete(n.names, i, i+1)
	}
}

// List returns the taken names in registration order
func (n *Names) List() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.names)
}

// Len returns the number of taken names
func (n *Names) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.names)
}

// Allocate picks a unique name for desired and registers it
func (n *Names) Allocate(desired string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	taken := make(map[string]struct{}, len(n.names))
	for _, name := range n.names {
		taken[name] = struct{}{}
	}
	name := NextName(desired, taken)
	n.names = append(n.names, name)
	return name
}

// NextName returns the first name derived from desired that is not in taken:
// desired itself, then desired-1, desired-2, ... An existing numeric suffix
// on desired is incremented rather than appended to.
func NextName(desired string, taken map[string]struct{}) string {
	name := desired
	for {
		if _, used := taken[name]; !used {
			return name
		}
		base, n := splitSuffix(name)
		name = base + "-" + strconv.Itoa(n+1)
	}
}

// AllocateName picks a unique name for desired and registers it in names
func AllocateName(desired string, names *Names) string {
	return names.Allocate(desired)
}

func splitSuffix(name string) (string, int) {
	i := strings.LastIndex(name, "-")
	if i < 0 || i == len(name)-1 {
		return name, 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n < 0 {
		return name, 0
	}
	return name[:i], n
}
