package domain

// User Model
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                                                    // Primary key, assigned by the store
	Name      string    `gorm:"not null" json:"name"`                                                    // Display name, non-empty
	CreatedAt int64     `gorm:"autoCreateTime:milli" json:"created_at"`                                  // Creation timestamp in milliseconds
	Readings  []Reading `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"readings,omitempty"` // One-to-many relationship with Reading
}
