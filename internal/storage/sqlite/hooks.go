package sqlite

import (
	"fmt"
	"os"
	"sort"

	"github.com/liminalcommons/chora-cvm/internal/storage"
)

// AddEntityHook registers a callback fired after every successful entity
// save, returning a handle for removal. Hooks are observation only: they
// run on the writer goroutine after the commit, a panic in one hook is
// reported and does not reach the saver or other hooks.
func (s *Store) AddEntityHook(hook storage.EntityHook) int {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.nextHook++
	s.hooks[s.nextHook] = hook
	return s.nextHook
}

// RemoveEntityHook unregisters a previously added hook.
func (s *Store) RemoveEntityHook(handle int) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	delete(s.hooks, handle)
}

func (s *Store) fireEntityHooks(entityID, entityType string, data map[string]any) {
	s.hookMu.Lock()
	handles := make([]int, 0, len(s.hooks))
	for h := range s.hooks {
		handles = append(handles, h)
	}
	sort.Ints(handles) // registration order
	hooks := make([]storage.EntityHook, 0, len(handles))
	for _, h := range handles {
		hooks = append(hooks, s.hooks[h])
	}
	s.hookMu.Unlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if p := recover(); p != nil {
					fmt.Fprintf(os.Stderr, "Warning: entity hook panicked for %s: %v\n", entityID, p)
				}
			}()
			hook(entityID, entityType, data)
		}()
	}
}
