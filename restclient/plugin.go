package restclient

import (
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/kbukum/restkit/pathmatch"
)

// AuthorizationHeaderPlugin supplies an Authorization header for requests
// whose path matches one of its patterns.
type AuthorizationHeaderPlugin interface {
	// PathPatterns returns Ant-style patterns, tried in order.
	PathPatterns() []string
	// AuthorizationType is the scheme, e.g. "Bearer".
	AuthorizationType() string
	// AuthorizationValue is the credential. An empty value adds no header.
	AuthorizationValue() string
}

// StaticPlugin is an AuthorizationHeaderPlugin with a fixed credential.
type StaticPlugin struct {
	patterns []string
	scheme   string
	value    string
}

// NewStaticPlugin creates a plugin that sends "<scheme> <value>" on paths
// matching any of patterns.
func NewStaticPlugin(scheme, value string, patterns ...string) *StaticPlugin {
	return &StaticPlugin{patterns: slices.Clone(patterns), scheme: scheme, value: value}
}

// PathPatterns implements AuthorizationHeaderPlugin.
func (p *StaticPlugin) PathPatterns() []string { return slices.Clone(p.patterns) }

// AuthorizationType implements AuthorizationHeaderPlugin.
func (p *StaticPlugin) AuthorizationType() string { return p.scheme }

// AuthorizationValue implements AuthorizationHeaderPlugin.
func (p *StaticPlugin) AuthorizationValue() string { return p.value }

// PluginRegistry holds the authorization plugins consulted on every call.
// Readers work on an immutable snapshot, so registration never blocks or
// disturbs requests in flight.
type PluginRegistry struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]AuthorizationHeaderPlugin]
}

// NewPluginRegistry creates a registry holding plugins in order.
func NewPluginRegistry(plugins ...AuthorizationHeaderPlugin) *PluginRegistry {
	r := &PluginRegistry{}
	list := slices.Clone(plugins)
	r.snapshot.Store(&list)
	return r
}

func (r *PluginRegistry) load() []AuthorizationHeaderPlugin {
	if p := r.snapshot.Load(); p != nil {
		return *p
	}
	return nil
}

// Register appends p. Earlier registrations take precedence.
func (r *PluginRegistry) Register(p AuthorizationHeaderPlugin) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	next := make([]AuthorizationHeaderPlugin, len(current), len(current)+1)
	copy(next, current)
	next = append(next, p)
	r.snapshot.Store(&next)
}

// Deregister removes the first registration of p. Removing a plugin that is
// not registered is a no-op.
func (r *PluginRegistry) Deregister(p AuthorizationHeaderPlugin) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.load()
	idx := slices.IndexFunc(current, func(q AuthorizationHeaderPlugin) bool { return samePlugin(q, p) })
	if idx < 0 {
		return
	}
	next := slices.Concat(current[:idx], current[idx+1:])
	r.snapshot.Store(&next)
}

// Plugins returns the registered plugins in registration order.
func (r *PluginRegistry) Plugins() []AuthorizationHeaderPlugin {
	return slices.Clone(r.load())
}

// Len returns the number of registered plugins.
func (r *PluginRegistry) Len() int {
	return len(r.load())
}

// Resolve returns the Authorization header value for path: the credential of
// the first plugin, in registration order, with a pattern matching path.
func (r *PluginRegistry) Resolve(path string) (string, bool) {
	for _, p := range r.load() {
		if _, ok := pathmatch.MatchAny(p.PathPatterns(), path); !ok {
			continue
		}
		value := p.AuthorizationValue()
		if value == "" {
			return "", false
		}
		if scheme := p.AuthorizationType(); scheme != "" {
			return scheme + " " + value, true
		}
		return value, true
	}
	return "", false
}

// samePlugin compares by identity. Plugins of uncomparable dynamic types are
// never equal, which keeps == from panicking.
func samePlugin(a, b AuthorizationHeaderPlugin) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
