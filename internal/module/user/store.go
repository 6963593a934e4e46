package user

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/simp-lee/userdir/internal/domain"
)

// DefaultLoadError is shown when a failed load carries no message.
const DefaultLoadError = "failed to load users"

// State is an immutable snapshot of a directory store. Slices and pointers
// are shared between snapshots and must not be modified by readers.
type State struct {
	Users         []domain.User `json:"users"`
	FilteredUsers []domain.User `json:"filtered_users"`
	Loading       bool          `json:"loading"`
	Error         *string       `json:"error"`
	SearchTerm    string        `json:"search_term"`
	Selected      *domain.User  `json:"selected"`
	ModalOpen     bool          `json:"modal_open"`
	// Version increases with every mutation so consumers can drop stale
	// snapshots delivered out of order.
	Version uint64 `json:"version"`
}

// StoreOptions configures a DirectoryStore.
type StoreOptions struct {
	// LoadDelay is waited before every fetch. Zero disables it.
	LoadDelay time.Duration
	// CloseDelay is how long a closed modal keeps its selection.
	CloseDelay time.Duration
	Logger     *slog.Logger
}

// afterFunc schedules f after d and returns a function that cancels it.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type subscriber struct {
	id int
	fn func(State)
}

// DirectoryStore owns the state of one directory view: the loaded users, the
// search term and its derived filtered view, loading and error flags, and the
// modal selection. All methods are safe for concurrent use. Subscribers are
// called synchronously on the mutating goroutine, outside the store lock.
type DirectoryStore struct {
	gateway    domain.UserGateway
	loadDelay  time.Duration
	closeDelay time.Duration
	logger     *slog.Logger
	afterFunc  afterFunc

	mu        sync.Mutex
	state     State
	clearGen  uint64
	stopClear func() bool
	subs      []subscriber
	nextSubID int
	closed    bool
}

// NewDirectoryStore creates a store in its initial state: no users, not
// loading, no error, empty search term and a closed modal. It does not load.
func NewDirectoryStore(gw domain.UserGateway, opts StoreOptions) *DirectoryStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	empty := []domain.User{}
	return &DirectoryStore{
		gateway:    gw,
		loadDelay:  max(opts.LoadDelay, 0),
		closeDelay: max(opts.CloseDelay, 0),
		logger:     logger.With(slog.String("component", "directory_store")),
		afterFunc:  timeAfterFunc,
		state: State{
			Users:         empty,
			FilteredUsers: empty,
		},
	}
}

// Load fetches all users through the gateway. Loading is set and the error
// cleared first; on success the user list is replaced wholesale, on failure
// the previous list stays and the error message is recorded. Loading is
// always reset when Load returns. The error is returned for callers that want
// it but is already reflected in the state.
//
// Overlapping calls are not deduplicated; the last one to finish wins.
func (s *DirectoryStore) Load(ctx context.Context) (err error) {
	s.mutate(func(st *State) bool {
		st.Loading = true
		st.Error = nil
		return true
	})

	var result *domain.GatewayResult[[]domain.User]
	defer func() {
		s.mutate(func(st *State) bool {
			switch {
			case err != nil:
				msg := loadErrorMessage(err)
				st.Error = &msg
			case result != nil:
				st.Users = result.Data
				if st.Users == nil {
					st.Users = []domain.User{}
				}
				refilter(st)
			}
			st.Loading = false
			return true
		})
	}()

	if err = s.wait(ctx); err != nil {
		err = domain.AsGatewayError(err)
		s.logger.ErrorContext(ctx, "load users interrupted", slog.Any("error", err))
		return err
	}

	result, err = s.gateway.FetchAll(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "load users failed", slog.Any("error", err))
		return err
	}

	if result != nil {
		s.logger.DebugContext(ctx, "users loaded", slog.Int("count", len(result.Data)))
	}
	return nil
}

func (s *DirectoryStore) wait(ctx context.Context) error {
	if s.loadDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(s.loadDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func loadErrorMessage(err error) string {
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return DefaultLoadError
}

// SelectUser opens the modal on u. A selection clear still pending from an
// earlier CloseModal is cancelled.
func (s *DirectoryStore) SelectUser(u domain.User) {
	s.mutate(func(st *State) bool {
		s.cancelClearLocked()
		selected := u
		st.Selected = &selected
		st.ModalOpen = true
		return true
	})
}

// CloseModal closes the modal immediately and clears the selection after the
// close delay, unless a newer SelectUser supersedes it.
func (s *DirectoryStore) CloseModal() {
	s.mutate(func(st *State) bool {
		st.ModalOpen = false
		s.scheduleClearLocked()
		return true
	})
}

// ClearError resets the error and nothing else.
func (s *DirectoryStore) ClearError() {
	s.mutate(func(st *State) bool {
		st.Error = nil
		return true
	})
}

// SetSearchTerm updates the search term and recomputes the filtered view.
func (s *DirectoryStore) SetSearchTerm(term string) {
	s.mutate(func(st *State) bool {
		st.SearchTerm = term
		refilter(st)
		return true
	})
}

// Snapshot returns the current state.
func (s *DirectoryStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// FindUser returns the loaded user with the given id.
func (s *DirectoryStore) FindUser(id int) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.state.Users {
		if u.ID == id {
			return u, true
		}
	}
	return domain.User{}, false
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// returned function unsubscribes; calling it more than once is harmless.
func (s *DirectoryStore) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextSubID
	s.nextSubID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close cancels the pending selection clear and drops all subscribers.
// The store stays readable; later mutations notify nobody.
func (s *DirectoryStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cancelClearLocked()
	s.subs = nil
}

// mutate applies fn under the lock and, when fn reports a change, bumps the
// version and notifies subscribers with the new snapshot.
func (s *DirectoryStore) mutate(fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	s.state.Version++
	snap := s.state
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
}

func (s *DirectoryStore) cancelClearLocked() {
	if s.stopClear != nil {
		s.stopClear()
		s.stopClear = nil
	}
	s.clearGen++
}

func (s *DirectoryStore) scheduleClearLocked() {
	s.cancelClearLocked()
	if s.closed {
		return
	}
	gen := s.clearGen
	s.stopClear = s.afterFunc(s.closeDelay, func() {
		s.clearSelection(gen)
	})
}

// clearSelection runs when the close delay expires. A timer that fired while
// a newer selection was being made sees a changed generation and does nothing.
func (s *DirectoryStore) clearSelection(gen uint64) {
	s.mutate(func(st *State) bool {
		if gen != s.clearGen {
			return false
		}
		s.stopClear = nil
		st.Selected = nil
		return true
	})
}

func refilter(st *State) {
	st.FilteredUsers = FilterByName(st.Users, st.SearchTerm)
}
