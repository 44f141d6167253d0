package envstore

import "sync"

// Token identifies a registered runtime. Tokens are never reused within a
// process, so a stale token held by a late collector callback misses
// instead of hitting a new runtime.
type Token uint64

var global = &store{entries: make(map[Token]any)}

type store struct {
	mu      sync.Mutex
	entries map[Token]any
	next    Token
}

// Add registers v and returns its token.
func Add(v any) Token {
	global.mu.Lock()
	defer global.mu.Unlock()
	global.next++
	t := global.next
	global.entries[t] = v
	return t
}

// Remove deregisters the token. Removing an unknown token is a no-op.
func Remove(t Token) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.entries, t)
}

// Access runs fn with the value registered under t while holding the store
// lock, or returns false if the token is gone. The callback must be short
// and must not re-enter the store.
func Access(t Token, fn func(any)) bool {
	global.mu.Lock()
	defer global.mu.Unlock()
	v, ok := global.entries[t]
	if !ok {
		return false
	}
	fn(v)
	return true
}

// Get returns the value registered under t without holding the lock across
// use. Callers that touch runtime internals must use Access instead; Get is
// only safe for values with their own synchronization.
func Get(t Token) (any, bool) {
	global.mu.Lock()
	defer global.mu.Unlock()
	v, ok := global.entries[t]
	return v, ok
}

// Len returns the number of live registrations.
func Len() int {
	global.mu.Lock()
	defer global.mu.Unlock()
	return len(global.entries)
}
