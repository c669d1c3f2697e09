package sink

import "sync"

// stagingRegistry tracks in-progress staging files so an interrupted
// process can remove them before exiting.
var globalStaging = &stagingRegistry{}

type stagingRegistry struct {
	entries map[string]func() error
	mu      sync.Mutex
}

func registerStaging(path string, remove func() error) {
	globalStaging.mu.Lock()
	defer globalStaging.mu.Unlock()
	if globalStaging.entries == nil {
		globalStaging.entries = make(map[string]func() error)
	}
	globalStaging.entries[path] = remove
}

func deregisterStaging(path string) {
	globalStaging.mu.Lock()
	defer globalStaging.mu.Unlock()
	delete(globalStaging.entries, path)
}

// CleanupStaging removes every registered staging file and returns how
// many removals were attempted.
func CleanupStaging() int {
	globalStaging.mu.Lock()
	removers := make([]func() error, 0, len(globalStaging.entries))
	for _, rm := range globalStaging.entries {
		removers = append(removers, rm)
	}
	globalStaging.entries = nil
	globalStaging.mu.Unlock()

	for _, rm := range removers {
		_ = rm()
	}
	return len(removers)
}
