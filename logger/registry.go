package logger

import "sync"

// named caches component loggers derived from the global logger. Init and
// SetGlobalLogger clear it so later lookups pick up the new configuration.
var named sync.Map

// Get returns the logger for a component, tagged with its name.
func Get(name string) *Logger {
	if l, ok := named.Load(name); ok {
		return l.(*Logger)
	}
	l, _ := named.LoadOrStore(name, GetGlobalLogger().WithComponent(name))
	return l.(*Logger)
}

// Set overrides the logger Get returns for name until the next Init.
func Set(name string, l *Logger) {
	named.Store(name, l)
}

func resetNamed() {
	named.Clear()
}
