package domain

// Normal blood-pressure bounds in mmHg. A stored reading is flagged
// abnormal when either value falls strictly outside its band.
const (
	SystolicMax  = 140 // Upper bound of normal systolic pressure
	SystolicMin  = 90  // Lower bound of normal systolic pressure
	DiastolicMax = 90  // Upper bound of normal diastolic pressure
	DiastolicMin = 60  // Lower bound of normal diastolic pressure
)

// Reading Model. The unique index on (user_id, measure_day) is what holds
// the one-reading-per-day invariant against concurrent writers: a racing
// same-day insert is rejected by the key instead of slipping past the
// transaction's lookup.
type Reading struct {
	ID          uint  `gorm:"primaryKey" json:"id"`                                        // Primary key, assigned on insert
	UserID      uint  `gorm:"not null;uniqueIndex:idx_user_day,priority:1" json:"user_id"` // Foreign key to the owning User
	Systolic    int   `gorm:"not null" json:"systolic"`                                    // Systolic pressure (high value)
	Diastolic   int   `gorm:"not null" json:"diastolic"`                                   // Diastolic pressure (low value)
	MeasureDate int64 `gorm:"not null" json:"measure_date"`                                // Measurement timestamp in milliseconds
	MeasureDay  int64 `gorm:"not null;uniqueIndex:idx_user_day,priority:2" json:"-"`       // Local midnight of MeasureDate, derived at write time
	IsAbnormal  bool  `json:"is_abnormal"`                                                 // Derived at write time, stored denormalized
}
