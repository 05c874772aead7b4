package model

import "time"

// Job is a global catalog entry. Any number of characters may hold the same job.
type Job struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Description     *string   `gorm:"type:text" json:"description"`
	MinStrength     int       `gorm:"default:0" json:"min_strength"`
	MinIntelligence int       `gorm:"default:0" json:"min_intelligence"`
	MinCharisma     int       `gorm:"default:0" json:"min_charisma"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}
