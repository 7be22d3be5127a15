package db

import "time"

type KeySetModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	SourceURL string    `gorm:"not null;default:''"`
	KeysJSON  []byte    `gorm:"type:jsonb;not null"`
	FetchedAt time.Time `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (KeySetModel) TableName() string {
	return "key_sets"
}
