// Package store is the persistence collaborator: row-level access to
// civilizations, their resource rows, characters and the job catalog.
// Singleton lookups return at most one row; absence maps to errs.ErrNotFound
// and driver failures to errs.ErrTransient.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kasuganosora/civmanager/game/errs"
	"github.com/kasuganosora/civmanager/model"
	"gorm.io/gorm"
)

// Store wraps a *gorm.DB (or a transaction handle).
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need raw queries.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn inside a database transaction. fn receives a Store bound
// to the transaction; returning an error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// IsUniqueViolation detects duplicate-key errors from common database drivers.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}

func classify(op, entity string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound(entity)
	}
	return errs.Transient("store: "+op, err)
}

// ---- Civilizations ----

// CivilizationByUser returns the civilization owned by userID.
func (s *Store) CivilizationByUser(ctx context.Context, userID int64) (*model.Civilization, error) {
	var civ model.Civilization
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&civ).Error; err != nil {
		return nil, classify("civilization by user", "civilization", err)
	}
	return &civ, nil
}

// CreateCivilization inserts a civilization row.
func (s *Store) CreateCivilization(ctx context.Context, civ *model.Civilization) error {
	if err := s.db.WithContext(ctx).Create(civ).Error; err != nil {
		if IsUniqueViolation(err) {
			return errs.Invalid("account already owns a civilization")
		}
		return errs.Transient("store: create civilization", err)
	}
	return nil
}

// RenameCivilization updates the display name.
func (s *Store) RenameCivilization(ctx context.Context, civID int64, name string) (*model.Civilization, error) {
	res := s.db.WithContext(ctx).Model(&model.Civilization{}).Where("id = ?", civID).
		Updates(map[string]interface{}{"name": name, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, errs.Transient("store: rename civilization", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.NotFound("civilization")
	}
	var civ model.Civilization
	if err := s.db.WithContext(ctx).Take(&civ, civID).Error; err != nil {
		return nil, classify("reload civilization", "civilization", err)
	}
	return &civ, nil
}

// ---- Resources ----

// Resources returns the resource row of a civilization.
func (s *Store) Resources(ctx context.Context, civID int64) (*model.CivilizationResources, error) {
	var res model.CivilizationResources
	if err := s.db.WithContext(ctx).Where("civilization_id = ?", civID).Take(&res).Error; err != nil {
		return nil, classify("resources", "resources", err)
	}
	return &res, nil
}

// CreateResources inserts the resource row of a civilization.
func (s *Store) CreateResources(ctx context.Context, res *model.CivilizationResources) error {
	if err := s.db.WithContext(ctx).Create(res).Error; err != nil {
		if IsUniqueViolation(err) {
			return errs.Invalid("resources already exist for civilization %d", res.CivilizationID)
		}
		return errs.Transient("store: create resources", err)
	}
	return nil
}

// UpdateResourcesIfVersion writes the four counters of res only if the stored
// row still carries version prev. It reports whether the write happened; on
// success res.Version is advanced.
func (s *Store) UpdateResourcesIfVersion(ctx context.Context, res *model.CivilizationResources, prev int64) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&model.CivilizationResources{}).
		Where("civilization_id = ? AND version = ?", res.CivilizationID, prev).
		Updates(map[string]interface{}{
			"food":           res.Food,
			"gold":           res.Gold,
			"materials":      res.Materials,
			"military_power": res.MilitaryPower,
			"version":        prev + 1,
			"updated_at":     now,
		})
	if result.Error != nil {
		return false, errs.Transient("store: update resources", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	res.Version = prev + 1
	res.UpdatedAt = now
	return true, nil
}

// ---- Characters ----

// Character returns a character that belongs to civID.
func (s *Store) Character(ctx context.Context, civID, charID int64) (*model.Character, error) {
	var c model.Character
	err := s.db.WithContext(ctx).
		Where("id = ? AND civilization_id = ?", charID, civID).
		Take(&c).Error
	if err != nil {
		return nil, classify("character", "character", err)
	}
	return &c, nil
}

// Characters lists the characters of a civilization ordered by name.
func (s *Store) Characters(ctx context.Context, civID int64) ([]model.Character, error) {
	var chars []model.Character
	if err := s.db.WithContext(ctx).Where("civilization_id = ?", civID).
		Order("name").Order("id").Find(&chars).Error; err != nil {
		return nil, errs.Transient("store: characters", err)
	}
	return chars, nil
}

// CountCharacters returns the population size of a civilization.
func (s *Store) CountCharacters(ctx context.Context, civID int64) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Character{}).
		Where("civilization_id = ?", civID).Count(&n).Error; err != nil {
		return 0, errs.Transient("store: count characters", err)
	}
	return n, nil
}

// CreateCharacter inserts a character. Stats are written as given so an
// explicit zero is not replaced by the column default.
func (s *Store) CreateCharacter(ctx context.Context, c *model.Character) error {
	err := s.db.WithContext(ctx).
		Select("CivilizationID", "Name", "Age", "JobID", "Strength", "Intelligence",
			"Charisma", "Experience", "Loyalty", "CreatedAt", "UpdatedAt").
		Create(c).Error
	if err != nil {
		return errs.Transient("store: create character", err)
	}
	return nil
}

// SetCharacterJob sets or clears (jobID nil) the job reference of a character.
func (s *Store) SetCharacterJob(ctx context.Context, civID, charID int64, jobID *int64) (*model.Character, error) {
	result := s.db.WithContext(ctx).Model(&model.Character{}).
		Where("id = ? AND civilization_id = ?", charID, civID).
		Updates(map[string]interface{}{"job_id": jobID, "updated_at": time.Now()})
	if result.Error != nil {
		return nil, errs.Transient("store: set character job", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, errs.NotFound("character")
	}
	return s.Character(ctx, civID, charID)
}

// DeleteCharacter removes a character of civID.
func (s *Store) DeleteCharacter(ctx context.Context, civID, charID int64) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND civilization_id = ?", charID, civID).
		Delete(&model.Character{})
	if result.Error != nil {
		return errs.Transient("store: delete character", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("character")
	}
	return nil
}

// ---- Jobs ----

// Jobs returns the job catalog ordered alphabetically by name.
func (s *Store) Jobs(ctx context.Context) ([]model.Job, error) {
	var jobs []model.Job
	if err := s.db.WithContext(ctx).Order("name").Find(&jobs).Error; err != nil {
		return nil, errs.Transient("store: jobs", err)
	}
	return jobs, nil
}

// Job returns one catalog entry.
func (s *Store) Job(ctx context.Context, id int64) (*model.Job, error) {
	var job model.Job
	if err := s.db.WithContext(ctx).Take(&job, id).Error; err != nil {
		return nil, classify("job", "job", err)
	}
	return &job, nil
}

// UpsertJob creates a job or updates the thresholds and description of the
// job with the same name.
func (s *Store) UpsertJob(ctx context.Context, job *model.Job) error {
	return s.Transaction(ctx, func(tx *Store) error {
		var existing model.Job
		err := tx.db.Where("name = ?", job.Name).Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.db.Create(job).Error; err != nil {
				return errs.Transient("store: create job", err)
			}
			return nil
		case err != nil:
			return errs.Transient("store: find job", err)
		}
		job.ID = existing.ID
		job.CreatedAt = existing.CreatedAt
		if err := tx.db.Model(&existing).Updates(map[string]interface{}{
			"description":      job.Description,
			"min_strength":     job.MinStrength,
			"min_intelligence": job.MinIntelligence,
			"min_charisma":     job.MinCharisma,
		}).Error; err != nil {
			return errs.Transient("store: update job", err)
		}
		return nil
	})
}

// DeleteJob removes a catalog entry. Characters holding it keep the dangling
// reference and read as unemployed.
func (s *Store) DeleteJob(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).Delete(&model.Job{}, id)
	if result.Error != nil {
		return errs.Transient("store: delete job", result.Error)
	}
	if result.RowsAffected == 0 {
		return errs.NotFound("job")
	}
	return nil
}
