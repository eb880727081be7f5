package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tenghuan/EaseBPMate/internal/bp"
	"github.com/tenghuan/EaseBPMate/internal/domain"
)

// allUsersTopic is the single topic of the user feed; the reading feed is
// keyed by user id instead.
const allUsersTopic uint = 0

// MySQLUserStore is the gorm-backed UserStore. Open the gorm DB with
// TranslateError enabled so driver errors map onto gorm's sentinels.
type MySQLUserStore struct {
	db       *gorm.DB
	feed     *feed[domain.User]
	readings *MySQLReadingStore
}

// MySQLReadingStore is the gorm-backed ReadingStore.
type MySQLReadingStore struct {
	db   *gorm.DB
	feed *feed[domain.Reading]
}

// NewMySQL builds the store pair over one shared gorm DB handle. The handle
// is opened once per process and injected; the stores never open or close
// connections themselves.
func NewMySQL(db *gorm.DB) (*MySQLUserStore, *MySQLReadingStore) {
	readings := &MySQLReadingStore{db: db, feed: newFeed[domain.Reading]()}
	users := &MySQLUserStore{db: db, feed: newFeed[domain.User](), readings: readings}
	return users, readings
}

// Close fails all live queries on both stores with ErrStorageUnavailable.
// Call on shutdown, before closing the underlying sql.DB, so subscribers
// get a terminal error instead of a silent hang.
func (s *MySQLUserStore) Close() {
	s.feed.Fail(ErrStorageUnavailable)
	s.readings.feed.Fail(ErrStorageUnavailable)
}

// Create stores a new user. Blank names (after trimming) are rejected with
// ErrInvalidArgument.
func (s *MySQLUserStore) Create(ctx context.Context, name string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.User{}, fmt.Errorf("%w: user name must not be blank", ErrInvalidArgument)
	}
	user := domain.User{Name: name}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return domain.User{}, translate(err)
	}
	s.feed.Publish(allUsersTopic)
	return user, nil
}

// ListAll returns every user ordered by name ascending.
func (s *MySQLUserStore) ListAll(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	if err := s.db.WithContext(ctx).Order("name asc").Find(&users).Error; err != nil {
		return nil, translate(err)
	}
	return users, nil
}

// WatchAll opens a live query over the user list.
func (s *MySQLUserStore) WatchAll(ctx context.Context) (*Sub[domain.User], error) {
	return s.feed.Subscribe(ctx, allUsersTopic, func() ([]domain.User, error) {
		return s.ListAll(context.Background())
	}), nil
}

// Delete removes the user and all of the user's readings in one
// transaction, so no reader observes the user gone with readings left
// behind (or the reverse). The schema also declares ON DELETE CASCADE as a
// backstop.
func (s *MySQLUserStore) Delete(ctx context.Context, user domain.User) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).Delete(&domain.Reading{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&domain.User{}, user.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: user %d", ErrNotFound, user.ID)
		}
		return nil
	})
	if err != nil {
		return translate(err)
	}
	s.feed.Publish(allUsersTopic)
	s.readings.feed.Publish(user.ID)
	return nil
}

// upsertAttempts bounds the duplicate-key retry in UpsertByDay. One retry
// is enough to replace a row that raced in; the extra attempt covers a
// second racer deleting it again in between.
const upsertAttempts = 3

// UpsertByDay stores a reading, replacing any prior reading for the same
// user and local calendar day. Concurrent same-day upserts are serialized
// twice over: the FOR UPDATE lookup makes a racing transaction wait on the
// (user_id, measure_day) key, and the unique index on that pair rejects any
// insert that slips through anyway — the loser re-runs the transaction and
// replaces the winner's row, so exactly one reading survives per day.
func (s *MySQLReadingStore) UpsertByDay(ctx context.Context, r domain.Reading) (domain.Reading, error) {
	r.IsAbnormal = bp.Classify(r.Systolic, r.Diastolic)
	r.MeasureDay, _ = localDayRange(r.MeasureDate)
	var err error
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		stored := r
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing domain.Reading
			lookupErr := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND measure_day = ?", r.UserID, r.MeasureDay).
				First(&existing).Error
			switch {
			case lookupErr == nil:
				// Same-day record found: replace, never merge.
				if err := tx.Delete(&existing).Error; err != nil {
					return err
				}
			case !errors.Is(lookupErr, gorm.ErrRecordNotFound):
				return lookupErr
			}
			stored.ID = 0 // replacement gets a fresh id; the old one is discarded
			return tx.Create(&stored).Error
		})
		if err == nil {
			s.feed.Publish(r.UserID)
			return stored, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		// Lost the insert race on the unique day key; retry to replace the
		// row that beat this one in.
	}
	return domain.Reading{}, translate(err)
}

// ListForUser returns the user's readings ordered by measure date descending.
func (s *MySQLReadingStore) ListForUser(ctx context.Context, userID uint) ([]domain.Reading, error) {
	var readings []domain.Reading
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("measure_date desc").
		Find(&readings).Error; err != nil {
		return nil, translate(err)
	}
	return readings, nil
}

// WatchUser opens a live query over one user's readings.
func (s *MySQLReadingStore) WatchUser(ctx context.Context, userID uint) (*Sub[domain.Reading], error) {
	return s.feed.Subscribe(ctx, userID, func() ([]domain.Reading, error) {
		return s.ListForUser(context.Background(), userID)
	}), nil
}

// DeleteAllForUser removes every reading the user owns.
func (s *MySQLReadingStore) DeleteAllForUser(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Reading{}).Error; err != nil {
		return translate(err)
	}
	s.feed.Publish(userID)
	return nil
}

// translate maps gorm/driver errors onto the store taxonomy. Anything that
// is not a recognized constraint failure is treated as the storage medium
// being unavailable.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrConstraintViolation):
		return err
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrConstraintViolation, err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}
