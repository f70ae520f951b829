package analytics

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// CardState is the presentation state of one session card.
type CardState int

const (
	Collapsed CardState = iota
	Loading
	Expanded
)

func (s CardState) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Loading:
		return "loading"
	case Expanded:
		return "expanded"
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON payloads.
func (s CardState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DetailFetcher loads the raw events of one session from the backing store.
type DetailFetcher func(ctx context.Context) ([]Event, error)

// CardResult is the outcome of a card transition.
type CardResult struct {
	SessionID string         `json:"session_id"`
	State     CardState      `json:"state"`
	Detail    *SessionDetail `json:"detail,omitempty"`
	// Cached is set when the detail came from the DetailCache without a fetch.
	Cached bool `json:"cached"`
	// Shared is set when the request joined a fetch already in flight.
	Shared bool `json:"shared"`
}

// Board tracks the card state of every session on a dashboard.
//
//	Collapsed --request--> Loading --detail arrived--> Expanded --request--> Collapsed
//
// Requests for a card that is Loading join the in-flight fetch instead of
// starting another one. A failed fetch returns the card to Collapsed.
type Board struct {
	mu     sync.Mutex
	states map[string]CardState
	cache  *DetailCache
	group  singleflight.Group
}

// NewBoard returns a board whose cards all start Collapsed. details may be
// shared between boards; a nil cache gets a private one that never expires.
func NewBoard(details *DetailCache) *Board {
	if details == nil {
		details = NewDetailCache(0)
	}
	return &Board{
		states: make(map[string]CardState),
		cache:  details,
	}
}

// State returns the current state of the card of sessionID.
func (b *Board) State(sessionID string) CardState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[sessionID]
}

// Toggle applies one request to the card of sessionID.
func (b *Board) Toggle(ctx context.Context, sessionID string, fetch DetailFetcher) (CardResult, error) {
	b.mu.Lock()
	if b.states[sessionID] == Expanded {
		b.states[sessionID] = Collapsed
		b.mu.Unlock()
		return CardResult{SessionID: sessionID, State: Collapsed}, nil
	}
	b.mu.Unlock()
	return b.Expand(ctx, sessionID, fetch)
}

// Expand opens the card of sessionID, fetching its detail unless it is
// memoized. Expanding an already expanded card returns its detail again.
//
// The shared fetch does not inherit the cancellation of the request that
// started it. A caller whose ctx ends stops waiting and gets ctx.Err(); the
// card stays Loading until the fetch settles it for the other callers.
func (b *Board) Expand(ctx context.Context, sessionID string, fetch DetailFetcher) (CardResult, error) {
	b.mu.Lock()
	if b.states[sessionID] != Loading {
		if d, ok := b.cache.Get(sessionID); ok {
			b.states[sessionID] = Expanded
			b.mu.Unlock()
			return CardResult{SessionID: sessionID, State: Expanded, Detail: &d, Cached: true}, nil
		}
		b.states[sessionID] = Loading
	}
	b.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	ch := b.group.DoChan(sessionID, func() (interface{}, error) {
		d, ok := b.cache.Get(sessionID)
		if !ok {
			events, err := fetch(fetchCtx)
			if err != nil {
				b.settle(sessionID, Collapsed)
				return nil, err
			}
			d = ExpandSessionDetail(sessionID, events)
			b.cache.Put(sessionID, d)
		}
		b.settle(sessionID, Expanded)
		return d, nil
	})

	select {
	case <-ctx.Done():
		return CardResult{SessionID: sessionID, State: b.State(sessionID)}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return CardResult{SessionID: sessionID, State: Collapsed, Shared: r.Shared}, r.Err
		}
		d := r.Val.(SessionDetail)
		return CardResult{SessionID: sessionID, State: Expanded, Detail: &d, Shared: r.Shared}, nil
	}
}

func (b *Board) settle(sessionID string, state CardState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[sessionID] = state
}

// Collapse closes the card of sessionID. The memoized detail is kept.
func (b *Board) Collapse(sessionID string) CardResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[sessionID] = Collapsed
	return CardResult{SessionID: sessionID, State: Collapsed}
}
