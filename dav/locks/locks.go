// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package locks implements an in-memory WebDAV lock manager per RFC
// 4918 §6 and spec.md §4.3, generalized from the single-exclusive-
// lock-per-node model the corpus ships (one token per node) to a
// multi-lock-per-path model: several shared locks may cover the same
// path at once, and an exclusive lock excludes every other lock on or
// above/below its path.
package locks

import (
	"container/heap"
	"errors"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrLocked is returned by Add when the requested lock would
	// conflict with an existing one.
	ErrLocked = errors.New("locks: resource is locked")
	// ErrNoSuchLock is returned by Refresh, Remove and Lookup when the
	// token does not name a current lock.
	ErrNoSuchLock = errors.New("locks: no such lock")
	// ErrMismatchedRoot names a lock whose root differs from the one a
	// caller expects. No Manager method returns it.
	ErrMismatchedRoot = errors.New("locks: lock root mismatch")
)

// Scope is the lock scope: exclusive or shared, per RFC 4918 §14.13/§14.22.
type Scope int

const (
	ScopeExclusive Scope = iota
	ScopeShared
)

// Info describes a single held lock.
type Info struct {
	Token     string
	Root      string // canonical (slash-cleaned) path the lock is rooted at
	Scope     Scope
	ZeroDepth bool // false means infinite depth
	OwnerXML  string
	Duration  time.Duration // negative means infinite
	Expiry    time.Time     // zero if Duration is infinite

	expiryIndex int // index into the expiry heap, -1 if not present
}

// Infinite is the sentinel Duration meaning "does not expire".
const Infinite time.Duration = -1

// Manager tracks every held lock and answers coverage/conflict queries.
// The zero value is not usable; use NewManager.
type Manager struct {
	mu      sync.Mutex
	byToken map[string]*Info
	byPath  map[string]*node
	expiry  expiryHeap
	gen     uint64
}

type node struct {
	path     string
	tokens   map[string]*Info // locks explicitly rooted at this exact path
	refCount int              // number of lock roots at or below this path
}

// NewManager returns a ready-to-use in-memory lock Manager.
func NewManager() *Manager {
	return &Manager{
		byToken: make(map[string]*Info),
		byPath:  make(map[string]*node),
	}
}

func (m *Manager) nextToken() string {
	m.gen++
	return "opaquelocktoken:" + strconv.FormatUint(m.gen, 10) + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
}

// reapExpired removes every lock whose Expiry has passed as of now. Must
// be called with m.mu held.
func (m *Manager) reapExpired(now time.Time) {
	for len(m.expiry) > 0 {
		if now.Before(m.expiry[0].Expiry) {
			break
		}
		m.removeLocked(m.expiry[0])
	}
}

// Add creates a new lock. Root is cleaned internally. duration is the
// requested lifetime; pass Infinite for no expiry.
func (m *Manager) Add(now time.Time, root string, scope Scope, zeroDepth bool, ownerXML string, duration time.Duration) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapExpired(now)

	root = cleanPath(root)
	if !m.canCreate(root, scope, zeroDepth) {
		return nil, ErrLocked
	}

	n := m.touch(root)
	info := &Info{
		Token:     m.nextToken(),
		Root:      root,
		Scope:     scope,
		ZeroDepth: zeroDepth,
		OwnerXML:  ownerXML,
		Duration:  duration,
		expiryIndex: -1,
	}
	if duration >= 0 {
		info.Expiry = now.Add(duration)
		heap.Push(&m.expiry, info)
	}
	n.tokens[info.Token] = info
	m.byToken[info.Token] = info
	cp := *info
	return &cp, nil
}

// Refresh extends the lock named by token to expire duration from now.
func (m *Manager) Refresh(now time.Time, token string, duration time.Duration) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapExpired(now)

	info, ok := m.byToken[token]
	if !ok {
		return nil, ErrNoSuchLock
	}
	if info.expiryIndex >= 0 {
		heap.Remove(&m.expiry, info.expiryIndex)
	}
	info.Duration = duration
	if duration >= 0 {
		info.Expiry = now.Add(duration)
		heap.Push(&m.expiry, info)
	} else {
		info.Expiry = time.Time{}
		info.expiryIndex = -1
	}
	cp := *info
	return &cp, nil
}

// Remove releases the lock named by token.
func (m *Manager) Remove(now time.Time, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapExpired(now)

	info, ok := m.byToken[token]
	if !ok {
		return ErrNoSuchLock
	}
	m.removeLocked(info)
	return nil
}

// Lookup returns the lock identified by token, or ErrNoSuchLock.
func (m *Manager) Lookup(now time.Time, token string) (*Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapExpired(now)

	info, ok := m.byToken[token]
	if !ok {
		return nil, ErrNoSuchLock
	}
	cp := *info
	return &cp, nil
}

// Covering returns every lock (on p itself, or an ancestor holding an
// infinite-depth lock) that covers the path p, per spec.md §4.3's
// coverage rule.
func (m *Manager) Covering(now time.Time, p string) []*Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapExpired(now)

	p = cleanPath(p)
	var out []*Info
	walkToRoot(p, func(name string, first bool) bool {
		n := m.byPath[name]
		if n == nil {
			return true
		}
		for _, info := range n.tokens {
			if first || !info.ZeroDepth {
				cp := *info
				out = append(out, &cp)
			}
		}
		return true
	})
	return out
}

// Submitted reports whether a write against p is allowed to proceed: p
// must either have no covering lock at all, or every lock covering it
// must have its token present in submittedTokens — the 423-avoidance
// check a writer must pass, per spec.md §4.3.
func (m *Manager) Submitted(now time.Time, p string, submittedTokens []string) bool {
	covering := m.Covering(now, p)
	if len(covering) == 0 {
		return true
	}
	if len(submittedTokens) == 0 {
		return false
	}
	submitted := make(map[string]bool, len(submittedTokens))
	for _, t := range submittedTokens {
		submitted[stripAngleBrackets(t)] = true
	}
	for _, info := range covering {
		if !submitted[info.Token] {
			return false
		}
	}
	return true
}

// RemoveRootedAt releases every lock whose root is exactly p (not
// ancestors, not descendants), returning the tokens removed. Used when a
// COPY/MOVE overwrites an existing destination, per spec.md §4.6
// ("existing locks on the destination are removed").
func (m *Manager) RemoveRootedAt(now time.Time, p string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reapExpired(now)

	p = cleanPath(p)
	n := m.byPath[p]
	if n == nil {
		return nil
	}
	var removed []string
	for tok, info := range n.tokens {
		removed = append(removed, tok)
		m.removeLocked(info)
	}
	return removed
}

func stripAngleBrackets(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '<' && s[len(s)-1] == '>' {
		return s[1 : len(s)-1]
	}
	return s
}

func (m *Manager) canCreate(p string, scope Scope, zeroDepth bool) bool {
	ok := true
	walkToRoot(p, func(name string, first bool) bool {
		n := m.byPath[name]
		if n == nil {
			return true
		}
		if first {
			for _, tok := range n.tokens {
				if tok.Scope == ScopeExclusive || scope == ScopeExclusive {
					ok = false
					return false
				}
			}
			if !zeroDepth {
				prefix := strings.TrimSuffix(name, "/") + "/"
				for q, d := range m.byPath {
					if !strings.HasPrefix(q, prefix) {
						continue
					}
					for _, tok := range d.tokens {
						if tok.Scope == ScopeExclusive || scope == ScopeExclusive {
							ok = false
							return false
						}
					}
				}
			}
			return true
		}
		for _, tok := range n.tokens {
			if !tok.ZeroDepth && (tok.Scope == ScopeExclusive || scope == ScopeExclusive) {
				ok = false
				return false
			}
		}
		return true
	})
	return ok
}

// touch returns the node at p, creating it and incrementing refCount
// along the path from root to p, mirroring the teacher's ref-counted
// ancestor walk.
func (m *Manager) touch(p string) *node {
	var ret *node
	walkToRoot(p, func(name string, first bool) bool {
		n := m.byPath[name]
		if n == nil {
			n = &node{path: name, tokens: make(map[string]*Info)}
			m.byPath[name] = n
		}
		n.refCount++
		if first {
			ret = n
		}
		return true
	})
	return ret
}

func (m *Manager) removeLocked(info *Info) {
	delete(m.byToken, info.Token)
	if n := m.byPath[info.Root]; n != nil {
		delete(n.tokens, info.Token)
	}
	walkToRoot(info.Root, func(name string, first bool) bool {
		n := m.byPath[name]
		if n == nil {
			return true
		}
		n.refCount--
		if n.refCount <= 0 && len(n.tokens) == 0 {
			delete(m.byPath, name)
		}
		return true
	})
	if info.expiryIndex >= 0 {
		heap.Remove(&m.expiry, info.expiryIndex)
	}
}

func walkToRoot(name string, f func(name string, first bool) bool) bool {
	for first := true; ; first = false {
		if !f(name, first) {
			return false
		}
		if name == "/" {
			break
		}
		name = path.Dir(name)
	}
	return true
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}

type expiryHeap []*Info

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].Expiry.Before(h[j].Expiry) }
func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].expiryIndex = i
	h[j].expiryIndex = j
}
func (h *expiryHeap) Push(x any) {
	info := x.(*Info)
	info.expiryIndex = len(*h)
	*h = append(*h, info)
}
func (h *expiryHeap) Pop() any {
	old := *h
	i := len(old) - 1
	info := old[i]
	old[i] = nil
	info.expiryIndex = -1
	*h = old[:i]
	return info
}
