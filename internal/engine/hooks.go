package engine

import "github.com/chaturanga836/docstore/internal/value"

// Subscriber receives (path, new_value, old_value) after a mutation's WAL
// append has returned, in LSN order (spec §6).
type Subscriber func(path string, newVal, oldVal value.Value)

// BeforeHook may rewrite the incoming value of a mutation before it is
// validated and applied. Before-hooks run inside the write-lock section
// and must not call back into the engine's own write methods.
type BeforeHook func(path string, v value.Value) (value.Value, error)

// AfterHook observes a mutation after it has been applied and notified.
type AfterHook func(path string, newVal, oldVal value.Value)

type subscription struct {
	pattern value.Path
	fn      Subscriber
}

type hookReg struct {
	method  string
	pattern value.Path
}

type beforeHookReg struct {
	hookReg
	fn BeforeHook
}

type afterHookReg struct {
	hookReg
	fn AfterHook
}

// Subscribe registers fn to run on every mutation whose path matches
// pattern ("*" = one segment, "**" = any remaining segments). The returned
// func unregisters it.
func (db *DB) Subscribe(pattern string, fn Subscriber) func() {
	sub := &subscription{pattern: value.ParsePath(pattern), fn: fn}
	db.subsMu.Lock()
	db.subscribers = append(db.subscribers, sub)
	db.subsMu.Unlock()

	return func() {
		db.subsMu.Lock()
		defer db.subsMu.Unlock()
		for i, s := range db.subscribers {
			if s == sub {
				db.subscribers = append(db.subscribers[:i], db.subscribers[i+1:]...)
				break
			}
		}
	}
}

// Before registers fn to run before every method-matching mutation at a
// matching path, in registration order, each able to rewrite the value.
func (db *DB) Before(method, pattern string, fn BeforeHook) {
	db.subsMu.Lock()
	defer db.subsMu.Unlock()
	db.beforeHooksList = append(db.beforeHooksList, &beforeHookReg{
		hookReg: hookReg{method: method, pattern: value.ParsePath(pattern)},
		fn:      fn,
	})
}

// After registers fn to run after every method-matching mutation at a
// matching path has been applied and notified.
func (db *DB) After(method, pattern string, fn AfterHook) {
	db.subsMu.Lock()
	defer db.subsMu.Unlock()
	db.afterHooksList = append(db.afterHooksList, &afterHookReg{
		hookReg: hookReg{method: method, pattern: value.ParsePath(pattern)},
		fn:      fn,
	})
}

func (db *DB) runBeforeHooks(method, p string, v value.Value) (value.Value, error) {
	db.subsMu.Lock()
	hooks := append([]*beforeHookReg(nil), db.beforeHooksList...)
	db.subsMu.Unlock()

	path := value.ParsePath(p)
	for _, h := range hooks {
		if h.method != method || !matchPattern(h.pattern, path) {
			continue
		}
		nv, err := h.fn(p, v)
		if err != nil {
			return v, err
		}
		v = nv
	}
	return v, nil
}

func (db *DB) runAfterHooks(method, p string, newVal, oldVal value.Value) {
	db.subsMu.Lock()
	hooks := append([]*afterHookReg(nil), db.afterHooksList...)
	db.subsMu.Unlock()

	path := value.ParsePath(p)
	for _, h := range hooks {
		if h.method != method || !matchPattern(h.pattern, path) {
			continue
		}
		h.fn(p, newVal, oldVal)
	}
}

func (db *DB) notify(p string, newVal, oldVal value.Value) {
	db.subsMu.Lock()
	subs := append([]*subscription(nil), db.subscribers...)
	db.subsMu.Unlock()

	path := value.ParsePath(p)
	for _, s := range subs {
		if matchPattern(s.pattern, path) {
			s.fn(p, newVal, oldVal)
		}
	}
}

// matchPattern reports whether path satisfies pattern, where "*" matches
// exactly one segment and "**" matches any number of remaining segments
// (data paths themselves never contain wildcards — spec §4.2/§9).
func matchPattern(pattern, path value.Path) bool {
	for len(pattern) > 0 {
		seg := pattern[0]
		if seg == "**" {
			return true
		}
		if len(path) == 0 {
			return false
		}
		if seg != "*" && seg != path[0] {
			return false
		}
		pattern = pattern[1:]
		path = path[1:]
	}
	return len(path) == 0
}
