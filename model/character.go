package model

import "time"

// Character is a population unit of a civilization. JobID is a weak reference:
// a missing job simply means the character is unemployed.
type Character struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CivilizationID int64     `gorm:"index:idx_char_civ;not null" json:"civilization_id"`
	Name           string    `gorm:"size:64;not null" json:"name"`
	Age            int       `gorm:"default:18" json:"age"`
	JobID          *int64    `gorm:"index:idx_char_job" json:"job_id"`
	Strength       int       `gorm:"default:10" json:"strength"`
	Intelligence   int       `gorm:"default:10" json:"intelligence"`
	Charisma       int       `gorm:"default:10" json:"charisma"`
	Experience     int64     `gorm:"default:0" json:"experience"`
	Loyalty        int       `gorm:"default:50" json:"loyalty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
