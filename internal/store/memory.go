package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tenghuan/EaseBPMate/internal/bp"
	"github.com/tenghuan/EaseBPMate/internal/domain"
)

// Memory implements UserStore and ReadingStore on in-process maps. It
// carries the full contract — day-level deduplication, cascade delete, live
// queries, monotonic never-reused ids — and backs the test suite and any
// embedded use without a database.
type Memory struct {
	mu          sync.Mutex
	users       map[uint]domain.User
	readings    map[uint]domain.Reading
	nextUser    uint
	nextReading uint

	userFeed    *feed[domain.User]
	readingFeed *feed[domain.Reading]
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[uint]domain.User),
		readings:    make(map[uint]domain.Reading),
		userFeed:    newFeed[domain.User](),
		readingFeed: newFeed[domain.Reading](),
	}
}

// Close fails all live queries with ErrStorageUnavailable, mirroring the
// MySQL store's shutdown behavior.
func (m *Memory) Close() {
	m.userFeed.Fail(ErrStorageUnavailable)
	m.readingFeed.Fail(ErrStorageUnavailable)
}

func (m *Memory) Create(ctx context.Context, name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, fmt.Errorf("%w: user name must not be blank", ErrInvalidArgument)
	}
	m.mu.Lock()
	m.nextUser++
	user := domain.User{ID: m.nextUser, Name: name, CreatedAt: time.Now().UnixMilli()}
	m.users[user.ID] = user
	m.mu.Unlock()

	m.userFeed.Publish(allUsersTopic)
	return user, nil
}

func (m *Memory) ListAll(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotUsers(), nil
}

func (m *Memory) WatchAll(ctx context.Context) (*Sub[domain.User], error) {
	return m.userFeed.Subscribe(ctx, allUsersTopic, func() ([]domain.User, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.snapshotUsers(), nil
	}), nil
}

func (m *Memory) Delete(_ context.Context, user domain.User) error {
	m.mu.Lock()
	if _, ok := m.users[user.ID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: user %d", ErrNotFound, user.ID)
	}
	// Cascade inside the same critical section: no observer sees the user
	// gone while readings remain, or the reverse.
	for id, r := range m.readings {
		if r.UserID == user.ID {
			delete(m.readings, id)
		}
	}
	delete(m.users, user.ID)
	m.mu.Unlock()

	m.userFeed.Publish(allUsersTopic)
	m.readingFeed.Publish(user.ID)
	return nil
}

func (m *Memory) UpsertByDay(_ context.Context, r domain.Reading) (domain.Reading, error) {
	r.IsAbnormal = bp.Classify(r.Systolic, r.Diastolic)
	r.MeasureDay, _ = localDayRange(r.MeasureDate)

	m.mu.Lock()
	if _, ok := m.users[r.UserID]; !ok {
		m.mu.Unlock()
		return domain.Reading{}, fmt.Errorf("%w: reading references unknown user %d", ErrConstraintViolation, r.UserID)
	}
	// Same (user, day bucket) key as the MySQL unique index: at most one
	// match can exist, replace it.
	for id, existing := range m.readings {
		if existing.UserID == r.UserID && existing.MeasureDay == r.MeasureDay {
			delete(m.readings, id)
			break
		}
	}
	m.nextReading++
	r.ID = m.nextReading
	m.readings[r.ID] = r
	m.mu.Unlock()

	m.readingFeed.Publish(r.UserID)
	return r, nil
}

func (m *Memory) ListForUser(_ context.Context, userID uint) ([]domain.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotReadings(userID), nil
}

func (m *Memory) WatchUser(ctx context.Context, userID uint) (*Sub[domain.Reading], error) {
	return m.readingFeed.Subscribe(ctx, userID, func() ([]domain.Reading, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.snapshotReadings(userID), nil
	}), nil
}

func (m *Memory) DeleteAllForUser(_ context.Context, userID uint) error {
	m.mu.Lock()
	for id, r := range m.readings {
		if r.UserID == userID {
			delete(m.readings, id)
		}
	}
	m.mu.Unlock()

	m.readingFeed.Publish(userID)
	return nil
}

// snapshotUsers returns the users ordered by name ascending. Caller holds mu.
func (m *Memory) snapshotUsers() []domain.User {
	users := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users
}

// snapshotReadings returns one user's readings ordered by measure date
// descending. Caller holds mu.
func (m *Memory) snapshotReadings(userID uint) []domain.Reading {
	readings := make([]domain.Reading, 0)
	for _, r := range m.readings {
		if r.UserID == userID {
			readings = append(readings, r)
		}
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].MeasureDate > readings[j].MeasureDate })
	return readings
}

// Interface conformance.
var (
	_ UserStore    = (*Memory)(nil)
	_ ReadingStore = (*Memory)(nil)
	_ UserStore    = (*MySQLUserStore)(nil)
	_ ReadingStore = (*MySQLReadingStore)(nil)
)
