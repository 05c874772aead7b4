package model

import "time"

// Civilization is one player's game save. user_id is unique: an account owns
// at most one civilization.
type Civilization struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex:idx_civ_user;not null" json:"user_id"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// CivilizationResources is the four-counter balance of one civilization.
// Version is bumped on every write and guards conditional updates.
type CivilizationResources struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CivilizationID int64     `gorm:"uniqueIndex:idx_res_civ;not null" json:"civilization_id"`
	Food           int64     `gorm:"not null;default:0" json:"food"`
	Gold           int64     `gorm:"not null;default:0" json:"gold"`
	Materials      int64     `gorm:"not null;default:0" json:"materials"`
	MilitaryPower  int64     `gorm:"not null;default:0" json:"military_power"`
	Version        int64     `gorm:"not null;default:0" json:"-"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CivilizationResources) TableName() string { return "civilization_resources" }
