package auth

import (
	"context"
	"sync"

	"expohub/internal/models"
)

// Event is what the backend's auth-change stream reports.
type Event string

const (
	SignedIn  Event = "SIGNED_IN"
	SignedOut Event = "SIGNED_OUT"
)

type Change struct {
	Event Event
	User  *models.User
}

// Backend is the auth surface of the remote platform as seen by a client.
type Backend interface {
	SignUp(ctx context.Context, email, password string) (*models.User, error)
	SignIn(ctx context.Context, email, password string) (*models.User, error)
	SignOut(ctx context.Context) error
	CurrentUser(ctx context.Context) (*models.User, error)
	Changes() <-chan Change
}

type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// State is an immutable snapshot. Holders publish whole replacements, never partial
// updates.
type State struct {
	User    *models.User
	Loading bool
	Error   string
}

// Result carries either the user or an error message.
type Result struct {
	User  *models.User
	Error string
}

func (r Result) OK() bool { return r.Error == "" }

// Holder owns the current auth state. It is the only writer; everyone else reads
// through State or Subscribe.
type Holder struct {
	backend Backend
	nav     Navigator

	mu    sync.RWMutex
	state State
	subs  map[int]chan State
	next  int
}

func NewHolder(b Backend, nav Navigator) *Holder {
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Holder{
		backend: b,
		nav:     nav,
		state:   State{Loading: true},
		subs:    make(map[int]chan State),
	}
}

func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *Holder) CurrentUser() *models.User { return h.State().User }

func (h *Holder) IsAuthenticated() bool { return h.State().User != nil }

// Subscribe returns a channel that holds the latest snapshot. Slow readers skip
// intermediate snapshots but always see the newest one.
func (h *Holder) Subscribe() (<-chan State, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan State, 1)
	ch <- h.state
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *Holder) update(fn func(State) State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = fn(h.state)
	for _, ch := range h.subs {
		select {
		case <-ch:
		default:
		}
		ch <- h.state
	}
}

// Init looks up the current user once.
func (h *Holder) Init(ctx context.Context) {
	u, err := h.backend.CurrentUser(ctx)
	if err != nil {
		h.update(func(State) State {
			return State{Error: "Failed to initialize authentication"}
		})
		return
	}
	h.update(func(State) State { return State{User: u} })
}

// Run applies backend auth changes until ctx is done or the stream closes. A
// sign-out sends the user to the root page.
func (h *Holder) Run(ctx context.Context) {
	changes := h.backend.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			h.apply(c)
		}
	}
}

func (h *Holder) apply(c Change) {
	h.update(func(s State) State {
		s.User = c.User
		s.Loading = false
		return s
	})
	if c.Event == SignedOut {
		h.nav.Navigate("/")
	}
}

func (h *Holder) SignUp(ctx context.Context, email, password, confirm string) Result {
	h.setLoading(true)
	defer h.setLoading(false)

	if password != confirm {
		return h.fail(ErrPasswordMismatch, "Registration failed")
	}
	u, err := h.backend.SignUp(ctx, email, password)
	if err != nil {
		return h.fail(err, "Registration failed")
	}
	return Result{User: u}
}

func (h *Holder) SignIn(ctx context.Context, email, password string) Result {
	h.setLoading(true)
	defer h.setLoading(false)

	u, err := h.backend.SignIn(ctx, email, password)
	if err != nil {
		return h.fail(err, "Login failed")
	}
	return Result{User: u}
}

// SignOut reports failures in the result; state changes arrive through Run.
func (h *Holder) SignOut(ctx context.Context) Result {
	if err := h.backend.SignOut(ctx); err != nil {
		return h.fail(err, "Sign out failed")
	}
	return Result{}
}

func (h *Holder) setLoading(v bool) {
	h.update(func(s State) State {
		s.Loading = v
		if v {
			s.Error = ""
		}
		return s
	})
}

func (h *Holder) fail(err error, fallback string) Result {
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	h.update(func(s State) State {
		s.Error = msg
		return s
	})
	return Result{Error: msg}
}
