package observability

import (
	"fmt"
	"log/slog"
	"sync"
)

var (
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
	mutex sync.RWMutex

	activeMu sync.RWMutex
	active   Observer = NoOpObserver{}
)

// SetActive installs obs as the process-wide observer that runtime
// internals (future, task, scheduler) report their own events to. A nil
// obs resets to NoOpObserver. rtconfig.Apply is the intended caller.
func SetActive(obs Observer) {
	activeMu.Lock()
	defer activeMu.Unlock()
	if obs == nil {
		obs = NoOpObserver{}
	}
	active = obs
}

// Active returns the process-wide observer, NoOpObserver until SetActive
// is called.
func Active() Observer {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return active
}

// GetObserver returns a registered observer by name.
// Pre-registered observers: "noop" (NoOpObserver) and "slog" (default logger).
func GetObserver(name string) (Observer, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	obs, exists := observers[name]
	if !exists {
		return nil, fmt.Errorf("unknown observer: %s", name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer in the global registry.
func RegisterObserver(name string, observer Observer) {
	mutex.Lock()
	defer mutex.Unlock()

	observers[name] = observer
}
