// Package progress keeps resumable run state so an interrupted run picks up
// at the account and cursor it stopped at.
package progress

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ibeckermayer/threadscrape/internal/store"
)

const stateKey = "progress/state"

// State is the persisted run state.
type State struct {
	RunID             string    `json:"run_id"`
	CompletedAccounts []string  `json:"completed_accounts"`
	CurrentAccount    string    `json:"current_account,omitempty"`
	LastCursor        string    `json:"last_cursor,omitempty"`
	TweetsCollected   int       `json:"tweets_collected"`
	StartTime         time.Time `json:"start_time"`
	LastUpdateTime    time.Time `json:"last_update_time"`
}

// IsCompleted reports whether handle finished in this run.
func (s State) IsCompleted(handle string) bool {
	return slices.Contains(s.CompletedAccounts, handle)
}

// ResumeCursor returns the saved cursor when handle is the account that was
// in progress, otherwise an empty cursor.
func (s State) ResumeCursor(handle string) string {
	if s.CurrentAccount == handle {
		return s.LastCursor
	}
	return ""
}

// Tracker reads and writes State through a KV.
type Tracker struct {
	kv     store.KV
	now    func() time.Time
	logger zerolog.Logger

	mu sync.Mutex
}

// NewTracker creates a tracker on kv.
func NewTracker(kv store.KV, logger zerolog.Logger) *Tracker {
	return &Tracker{
		kv:     kv,
		now:    time.Now,
		logger: logger.With().Str("component", "progress").Logger(),
	}
}

func (t *Tracker) fresh() State {
	now := t.now().UTC()
	return State{
		RunID:             uuid.NewString(),
		CompletedAccounts: []string{},
		StartTime:         now,
		LastUpdateTime:    now,
	}
}

// Load returns the stored state, or a fresh unsaved one when none exists.
func (t *Tracker) Load(ctx context.Context) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

func (t *Tracker) load(ctx context.Context) (State, error) {
	st, err := store.GetJSON[State](ctx, t.kv, stateKey)
	if errors.Is(err, store.ErrNotFound) {
		return t.fresh(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load progress: %w", err)
	}
	if st.CompletedAccounts == nil {
		st.CompletedAccounts = []string{}
	}
	return st, nil
}

// Update applies fn to the current state and saves the result.
func (t *Tracker) Update(ctx context.Context, fn func(*State)) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, err := t.load(ctx)
	if err != nil {
		return State{}, err
	}
	fn(&st)
	return st, t.save(ctx, &st)
}

// Save replaces the stored state.
func (t *Tracker) Save(ctx context.Context, st State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.save(ctx, &st)
}

func (t *Tracker) save(ctx context.Context, st *State) error {
	st.LastUpdateTime = t.now().UTC()
	if err := store.PutJSON(ctx, t.kv, stateKey, *st); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Reset discards the stored state and starts a new run.
func (t *Tracker) Reset(ctx context.Context) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.fresh()
	if err := t.save(ctx, &st); err != nil {
		return State{}, err
	}
	t.logger.Info().Str("run_id", st.RunID).Msg("progress reset")
	return st, nil
}

// StartAccount marks handle as in progress and returns the cursor to resume
// from, which is empty unless handle was interrupted mid-way.
func (t *Tracker) StartAccount(ctx context.Context, handle string) (string, error) {
	var cursor string
	_, err := t.Update(ctx, func(st *State) {
		cursor = st.ResumeCursor(handle)
		if st.CurrentAccount != handle {
			st.CurrentAccount = handle
			st.LastCursor = ""
		}
	})
	return cursor, err
}

// SaveCursor records the next page cursor for the current account and adds
// collected to the running tweet count.
func (t *Tracker) SaveCursor(ctx context.Context, handle, cursor string, collected int) error {
	_, err := t.Update(ctx, func(st *State) {
		st.CurrentAccount = handle
		st.LastCursor = cursor
		st.TweetsCollected += collected
	})
	return err
}

// MarkCompleted records handle as done and clears the in-progress cursor.
func (t *Tracker) MarkCompleted(ctx context.Context, handle string) (State, error) {
	return t.Update(ctx, func(st *State) {
		if !st.IsCompleted(handle) {
			st.CompletedAccounts = append(st.CompletedAccounts, handle)
		}
		if st.CurrentAccount == handle {
			st.CurrentAccount = ""
			st.LastCursor = ""
		}
	})
}
