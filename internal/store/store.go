// Package store holds the durable-store contracts for users and
// blood-pressure readings, the live-query subscription machinery, and two
// implementations: MySQL-backed (gorm) for production and in-memory for
// tests and embedded use.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tenghuan/EaseBPMate/internal/domain"
)

// Store error taxonomy. Implementations wrap these sentinels so callers can
// branch with errors.Is and translate them into user-visible messages.
var (
	ErrInvalidArgument     = errors.New("invalid argument")     // Caller-supplied value rejected (e.g. blank name)
	ErrConstraintViolation = errors.New("constraint violation") // Reading references a nonexistent user
	ErrStorageUnavailable  = errors.New("storage unavailable")  // Durable medium cannot be reached or written
	ErrNotFound            = errors.New("not found")            // Target record does not exist
)

// UserStore manages the tracked people.
type UserStore interface {
	// Create stores a new user with the given display name. The name must
	// be non-blank after trimming; ids are assigned monotonically and
	// never reused.
	Create(ctx context.Context, name string) (domain.User, error)
	// ListAll returns all users ordered by name ascending.
	ListAll(ctx context.Context) ([]domain.User, error)
	// WatchAll opens a live query over the user list: an initial snapshot,
	// then a fresh snapshot after every committed mutation. The
	// subscription ends when ctx is cancelled or Close is called.
	WatchAll(ctx context.Context) (*Sub[domain.User], error)
	// Delete removes a user and, atomically with it, every reading the
	// user owns. Other readers never observe an orphan window.
	Delete(ctx context.Context, user domain.User) error
}

// ReadingStore manages blood-pressure readings. Each user holds at most one
// reading per local calendar day.
type ReadingStore interface {
	// UpsertByDay stores a reading, replacing any prior reading the user
	// has on the same local calendar day (delete then insert — the old id
	// is discarded and a fresh one assigned). The abnormality flag is
	// derived from the clinical thresholds at write time. Concurrent
	// upserts for the same user and day are serialized by the store.
	UpsertByDay(ctx context.Context, r domain.Reading) (domain.Reading, error)
	// ListForUser returns the user's readings ordered by measure date
	// descending.
	ListForUser(ctx context.Context, userID uint) ([]domain.Reading, error)
	// WatchUser opens a live query over one user's readings; same
	// contract as UserStore.WatchAll.
	WatchUser(ctx context.Context, userID uint) (*Sub[domain.Reading], error)
	// DeleteAllForUser removes every reading owned by the user.
	DeleteAllForUser(ctx context.Context, userID uint) error
}

// localDayRange returns the [from, to) millisecond bounds of the local
// calendar day containing ms. Day-level deduplication buckets by this range.
func localDayRange(ms int64) (from, to int64) {
	t := time.UnixMilli(ms).Local()
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start.UnixMilli(), start.AddDate(0, 0, 1).UnixMilli()
}
