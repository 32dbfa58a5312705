// Package track keeps per-document completion request state.
//
// For every open document the Tracker remembers when the last request was
// issued, which request is the current one, and until when clearing the
// displayed suggestion is suppressed. Completions are asynchronous and the
// user keeps typing, so several requests for one document can be in flight
// at once; only the most recently recorded one may deliver. Older results
// are recognized as stale and dropped by the caller, without cancelling the
// underlying network calls.
package track

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	// DefaultSuppressGrace is how long clearing stays suppressed after a
	// suggestion is accepted.
	DefaultSuppressGrace = 200 * time.Millisecond
	// DefaultIdleTTL expires state of documents that were never reported
	// closed. Every access refreshes it.
	DefaultIdleTTL = 1 * time.Hour
)

// Token identifies one completion request. The zero value means "none".
type Token string

// ViewState is the request state of one document.
type ViewState struct {
	// LastRequest is when the last request was recorded; zero means never.
	LastRequest time.Time
	// Pending is the token of the most recently recorded request.
	Pending Token
	// SuppressClearUntil is the end of the post-accept grace period.
	SuppressClearUntil time.Time
}

// Stats summarizes tracker contents.
type Stats struct {
	Documents      int
	ActiveRequests int
}

// Tracker is a keyed store of ViewState entries, one per document identity.
// It is safe for concurrent use; every operation is short and never blocks
// on I/O.
type Tracker struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *ViewState]
	now   func() time.Time
	seq   atomic.Uint64
}

// New creates a tracker whose entries expire after idleTTL without access.
// A non-positive idleTTL disables expiry.
func New(idleTTL time.Duration) *Tracker {
	if idleTTL <= 0 {
		idleTTL = ttlcache.NoTTL
	}
	c := ttlcache.New[string, *ViewState](
		ttlcache.WithTTL[string, *ViewState](idleTTL),
	)
	c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *ViewState]) {
		if reason == ttlcache.EvictionReasonExpired {
			slog.Debug("document state expired", "doc", item.Key())
		}
	})
	go c.Start()
	return &Tracker{cache: c, now: time.Now}
}

// Close stops the expiration loop.
func (t *Tracker) Close() {
	t.cache.Stop()
}

// lookupLocked returns the state for doc, or nil if there is none.
func (t *Tracker) lookupLocked(doc string) *ViewState {
	item := t.cache.Get(doc)
	if item == nil {
		return nil
	}
	return item.Value()
}

// stateLocked returns the state for doc, creating a zero-valued one.
func (t *Tracker) stateLocked(doc string) *ViewState {
	if st := t.lookupLocked(doc); st != nil {
		return st
	}
	st := &ViewState{}
	t.cache.Set(doc, st, ttlcache.DefaultTTL)
	return st
}

// Get returns a copy of the state for doc, creating it if needed.
func (t *Tracker) Get(doc string) ViewState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.stateLocked(doc)
}

// NewToken builds a token for a request issued now at the given cursor.
func (t *Tracker) NewToken(line, character int) Token {
	return Token(fmt.Sprintf("%d-%d-%d-%d", t.now().UnixMilli(), line, character, t.seq.Add(1)))
}

// CanMakeRequest reports whether at least minInterval has passed since the
// last recorded request for doc. It does not modify any state.
func (t *Tracker) CanMakeRequest(doc string, minInterval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.lookupLocked(doc)
	if st == nil || st.LastRequest.IsZero() {
		return true
	}
	return t.now().Sub(st.LastRequest) >= minInterval
}

// TryRecord records token as the current request for doc if at least
// minInterval has passed since the last one. The check and the update happen
// under one lock, so of several concurrent callers at most one wins.
func (t *Tracker) TryRecord(doc string, token Token, minInterval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if st := t.lookupLocked(doc); st != nil && !st.LastRequest.IsZero() && now.Sub(st.LastRequest) < minInterval {
		return false
	}
	st := t.stateLocked(doc)
	st.LastRequest = now
	st.Pending = token
	return true
}

// RecordRequest marks token as the current request for doc, replacing any
// previous one, and restarts the rate-limit interval.
func (t *Tracker) RecordRequest(doc string, token Token) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateLocked(doc)
	st.LastRequest = t.now()
	st.Pending = token
}

// IsStale reports whether token is no longer the current request for doc.
// Requests for unknown (closed) documents and requests whose slot was
// cleared are stale.
func (t *Tracker) IsStale(doc string, token Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.lookupLocked(doc)
	if st == nil || st.Pending == "" {
		return true
	}
	return st.Pending != token
}

// ClearRequest forgets the current request for doc.
func (t *Tracker) ClearRequest(doc string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st := t.lookupLocked(doc); st != nil {
		st.Pending = ""
	}
}

// ClearIfCurrent forgets the current request for doc only if it is token.
// It reports whether the slot was cleared.
func (t *Tracker) ClearIfCurrent(doc string, token Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.lookupLocked(doc)
	if st == nil || st.Pending == "" || st.Pending != token {
		return false
	}
	st.Pending = ""
	return true
}

// SuppressClearFor ignores requests to clear the suggestion of doc for d.
func (t *Tracker) SuppressClearFor(doc string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stateLocked(doc)
	st.SuppressClearUntil = t.now().Add(d)
}

// IsClearingSuppressed reports whether doc is inside its grace period.
func (t *Tracker) IsClearingSuppressed(doc string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.lookupLocked(doc)
	if st == nil {
		return false
	}
	return t.now().Before(st.SuppressClearUntil)
}

// Remove deletes the state for doc. Removing an unknown document is a no-op.
func (t *Tracker) Remove(doc string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Delete(doc)
}

// Stats returns the number of tracked documents and how many of them have a
// pending request.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	var s Stats
	for _, item := range t.cache.Items() {
		s.Documents++
		if item.Value().Pending != "" {
			s.ActiveRequests++
		}
	}
	return s
}

// Reset drops all state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.DeleteAll()
}
