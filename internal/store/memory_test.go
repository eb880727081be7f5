package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenghuan/EaseBPMate/internal/domain"
)

func msAt(day time.Time, hour int) int64 {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.Local).UnixMilli()
}

var (
	day1 = time.Date(2024, 3, 5, 0, 0, 0, 0, time.Local)
	day2 = time.Date(2024, 3, 6, 0, 0, 0, 0, time.Local)
)

func TestCreateUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u, err := m.Create(ctx, "  张三  ")
	require.NoError(t, err)
	assert.Equal(t, uint(1), u.ID)
	assert.Equal(t, "张三", u.Name, "name is trimmed")
	assert.NotZero(t, u.CreatedAt)

	u2, err := m.Create(ctx, "李四")
	require.NoError(t, err)
	assert.Equal(t, uint(2), u2.ID, "ids are monotonic")
}

func TestCreateUserBlankName(t *testing.T) {
	m := NewMemory()
	for _, name := range []string{"", "   ", "\t\n"} {
		_, err := m.Create(context.Background(), name)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	}
}

func TestListAllOrderedByName(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, name := range []string{"charlie", "alice", "bob"} {
		_, err := m.Create(ctx, name)
		require.NoError(t, err)
	}
	users, err := m.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Name)
	assert.Equal(t, "bob", users[1].Name)
	assert.Equal(t, "charlie", users[2].Name)
}

func TestUpsertByDayClassifies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)

	normal, err := m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 8)})
	require.NoError(t, err)
	assert.False(t, normal.IsAbnormal)

	abnormal, err := m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 150, Diastolic: 80, MeasureDate: msAt(day2, 8)})
	require.NoError(t, err)
	assert.True(t, abnormal.IsAbnormal)
}

func TestUpsertByDayReplacesSameDay(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)

	first, err := m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 8)})
	require.NoError(t, err)
	second, err := m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 135, Diastolic: 88, MeasureDate: msAt(day1, 20)})
	require.NoError(t, err)

	list, err := m.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1, "two same-day upserts leave exactly one reading")
	assert.Equal(t, second, list[0], "the replacement wins")
	assert.Equal(t, 135, list[0].Systolic)
	assert.NotEqual(t, first.ID, second.ID, "replacement gets a fresh id")
}

func TestUpsertByDayKeepsDifferentDays(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)

	_, err = m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 23)})
	require.NoError(t, err)
	_, err = m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 125, Diastolic: 82, MeasureDate: msAt(day2, 0)})
	require.NoError(t, err)

	list, err := m.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 2, "adjacent days are distinct buckets")
	assert.Equal(t, 125, list[0].Systolic, "newest first")
	assert.Equal(t, 120, list[1].Systolic)
}

func TestUpsertByDayBucketsByLocalMidnight(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)
	midnight := day1.UnixMilli()

	morning, err := m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 8)})
	require.NoError(t, err)
	evening, err := m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 135, Diastolic: 88, MeasureDate: msAt(day1, 20)})
	require.NoError(t, err)

	// Both writes derive the same day bucket, so they collide on the
	// (user, day) key and only one row can ever hold it.
	assert.Equal(t, midnight, morning.MeasureDay)
	assert.Equal(t, midnight, evening.MeasureDay)

	list, err := m.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, midnight, list[0].MeasureDay)
}

func TestUpsertByDayUnknownUser(t *testing.T) {
	m := NewMemory()
	_, err := m.UpsertByDay(context.Background(), domain.Reading{UserID: 42, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 8)})
	assert.ErrorIs(t, err, ErrConstraintViolation)
}

func TestDeleteCascades(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)
	for i, day := range []time.Time{day1, day2, day2.AddDate(0, 0, 1)} {
		_, err := m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 120 + i, Diastolic: 80, MeasureDate: msAt(day, 8)})
		require.NoError(t, err)
	}

	require.NoError(t, m.Delete(ctx, u))

	list, err := m.ListForUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "readings go with their owner")
	users, err := m.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestDeleteUnknownUser(t *testing.T) {
	m := NewMemory()
	err := m.Delete(context.Background(), domain.User{ID: 99})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteAllForUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, err := m.Create(ctx, "alice")
	require.NoError(t, err)
	b, err := m.Create(ctx, "bob")
	require.NoError(t, err)
	_, err = m.UpsertByDay(ctx, domain.Reading{UserID: a.ID, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 8)})
	require.NoError(t, err)
	_, err = m.UpsertByDay(ctx, domain.Reading{UserID: b.ID, Systolic: 118, Diastolic: 78, MeasureDate: msAt(day1, 8)})
	require.NoError(t, err)

	require.NoError(t, m.DeleteAllForUser(ctx, a.ID))

	aList, err := m.ListForUser(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, aList)
	bList, err := m.ListForUser(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, bList, 1, "other users are untouched")
}

func TestWatchUserEmitsOnMutation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)

	sub, err := m.WatchUser(ctx, u.ID)
	require.NoError(t, err)
	defer sub.Close()

	snap := <-sub.C
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Rows, "initial snapshot of an empty history")

	_, err = m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 8)})
	require.NoError(t, err)

	snap = <-sub.C
	require.NoError(t, snap.Err)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, 120, snap.Rows[0].Systolic)

	require.NoError(t, m.DeleteAllForUser(ctx, u.ID))
	snap = <-sub.C
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Rows, "deletes re-emit too")
}

func TestWatchUserCoalescesForSlowConsumers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)

	sub, err := m.WatchUser(ctx, u.ID)
	require.NoError(t, err)
	defer sub.Close()

	// Nothing consumed yet: three mutations pile up behind the initial
	// snapshot; the consumer must see only the freshest state.
	for i, day := range []time.Time{day1, day2, day2.AddDate(0, 0, 1)} {
		_, err := m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 120 + i, Diastolic: 80, MeasureDate: msAt(day, 8)})
		require.NoError(t, err)
	}

	snap := <-sub.C
	require.NoError(t, snap.Err)
	assert.Len(t, snap.Rows, 3, "stale snapshots are dropped, not queued")
}

func TestWatchUserScopedToUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	a, err := m.Create(ctx, "alice")
	require.NoError(t, err)
	b, err := m.Create(ctx, "bob")
	require.NoError(t, err)

	sub, err := m.WatchUser(ctx, a.ID)
	require.NoError(t, err)
	defer sub.Close()
	<-sub.C // initial snapshot

	// A mutation for another user must not wake this subscription.
	_, err = m.UpsertByDay(ctx, domain.Reading{UserID: b.ID, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 8)})
	require.NoError(t, err)

	select {
	case snap := <-sub.C:
		t.Fatalf("unexpected emission: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWatchAllEmitsOnUserChanges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.WatchAll(ctx)
	require.NoError(t, err)
	defer sub.Close()

	snap := <-sub.C
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Rows)

	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)
	snap = <-sub.C
	require.NoError(t, snap.Err)
	require.Len(t, snap.Rows, 1)

	require.NoError(t, m.Delete(ctx, u))
	snap = <-sub.C
	require.NoError(t, snap.Err)
	assert.Empty(t, snap.Rows)
}

func TestWatchCloseStopsEmissions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)

	sub, err := m.WatchUser(ctx, u.ID)
	require.NoError(t, err)
	<-sub.C // initial snapshot
	sub.Close()
	sub.Close() // idempotent

	_, err = m.UpsertByDay(ctx, domain.Reading{UserID: u.ID, Systolic: 120, Diastolic: 80, MeasureDate: msAt(day1, 8)})
	require.NoError(t, err)

	_, ok := <-sub.C
	assert.False(t, ok, "channel is closed after Close")
}

func TestWatchContextCancelUnsubscribes(t *testing.T) {
	m := NewMemory()
	u, err := m.Create(context.Background(), "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := m.WatchUser(ctx, u.ID)
	require.NoError(t, err)
	<-sub.C // initial snapshot

	cancel()
	_, ok := <-sub.C
	assert.False(t, ok, "cancellation closes the subscription")
}

func TestCloseDeliversTerminalError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	u, err := m.Create(ctx, "alice")
	require.NoError(t, err)

	sub, err := m.WatchUser(ctx, u.ID)
	require.NoError(t, err)
	<-sub.C // initial snapshot

	m.Close()

	snap, ok := <-sub.C
	require.True(t, ok, "the error itself is delivered")
	assert.ErrorIs(t, snap.Err, ErrStorageUnavailable)
	_, ok = <-sub.C
	assert.False(t, ok, "the subscription is terminal after the error")

	// New subscriptions on a failed store observe the same terminal error.
	late, err := m.WatchUser(ctx, u.ID)
	require.NoError(t, err)
	snap = <-late.C
	assert.ErrorIs(t, snap.Err, ErrStorageUnavailable)
}
