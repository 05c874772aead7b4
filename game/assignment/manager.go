// Package assignment manages the characters of a civilization and their job
// references.
package assignment

import (
	"context"
	"strings"
	"time"

	"github.com/kasuganosora/civmanager/game/errs"
	"github.com/kasuganosora/civmanager/game/jobs"
	"github.com/kasuganosora/civmanager/model"
	"go.uber.org/zap"
)

// DefaultStat is the value of every stat a recruit is not given explicitly.
const DefaultStat = 10

// Repository is the slice of the persistence store the manager needs.
type Repository interface {
	Character(ctx context.Context, civID, charID int64) (*model.Character, error)
	Characters(ctx context.Context, civID int64) ([]model.Character, error)
	CountCharacters(ctx context.Context, civID int64) (int64, error)
	CreateCharacter(ctx context.Context, c *model.Character) error
	SetCharacterJob(ctx context.Context, civID, charID int64, jobID *int64) (*model.Character, error)
	DeleteCharacter(ctx context.Context, civID, charID int64) error
	Jobs(ctx context.Context) ([]model.Job, error)
	Job(ctx context.Context, id int64) (*model.Job, error)
}

// Member is a character with its job resolved. Job is nil when the character
// is unemployed or its job no longer exists.
type Member struct {
	model.Character
	Job *model.Job `json:"job"`
}

// RecruitRequest describes a new character. Nil stats take DefaultStat.
type RecruitRequest struct {
	Name         string `json:"name"`
	Age          *int   `json:"age"`
	Strength     *int   `json:"strength"`
	Intelligence *int   `json:"intelligence"`
	Charisma     *int   `json:"charisma"`
}

// Manager applies roster and job-assignment operations scoped to one
// civilization at a time.
type Manager struct {
	repo          Repository
	maxCharacters int
	logger        *zap.Logger
}

// NewManager creates a Manager. maxCharacters <= 0 disables the population cap.
func NewManager(repo Repository, maxCharacters int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{repo: repo, maxCharacters: maxCharacters, logger: logger}
}

// Assign gives a character a job after re-checking the thresholds against the
// stored stats.
func (m *Manager) Assign(ctx context.Context, civID, charID, jobID int64) (*model.Character, error) {
	c, err := m.repo.Character(ctx, civID, charID)
	if err != nil {
		return nil, err
	}
	job, err := m.repo.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !jobs.IsEligible(jobs.StatsOf(c), job) {
		return nil, errs.NotEligibleFor(c.Name, job.Name)
	}
	updated, err := m.repo.SetCharacterJob(ctx, civID, charID, &job.ID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("character assigned",
		zap.Int64("civilization_id", civID),
		zap.Int64("character_id", charID),
		zap.String("job", job.Name))
	return updated, nil
}

// Unassign clears the job reference. It succeeds regardless of stats or of
// whether the character currently holds a job.
func (m *Manager) Unassign(ctx context.Context, civID, charID int64) (*model.Character, error) {
	return m.repo.SetCharacterJob(ctx, civID, charID, nil)
}

// Delete removes a character. Jobs and resources are untouched.
func (m *Manager) Delete(ctx context.Context, civID, charID int64) error {
	if err := m.repo.DeleteCharacter(ctx, civID, charID); err != nil {
		return err
	}
	m.logger.Info("character deleted",
		zap.Int64("civilization_id", civID),
		zap.Int64("character_id", charID))
	return nil
}

// Recruit adds a character to the civilization.
func (m *Manager) Recruit(ctx context.Context, civID int64, req RecruitRequest) (*model.Character, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.Invalid("character name is required")
	}
	if len(name) > 64 {
		return nil, errs.Invalid("character name is too long")
	}
	if m.maxCharacters > 0 {
		n, err := m.repo.CountCharacters(ctx, civID)
		if err != nil {
			return nil, err
		}
		if n >= int64(m.maxCharacters) {
			return nil, errs.Invalid("population limit of %d reached", m.maxCharacters)
		}
	}
	now := time.Now()
	c := &model.Character{
		CivilizationID: civID,
		Name:           name,
		Age:            orDefault(req.Age, 18),
		Strength:       orDefault(req.Strength, DefaultStat),
		Intelligence:   orDefault(req.Intelligence, DefaultStat),
		Charisma:       orDefault(req.Charisma, DefaultStat),
		Loyalty:        50,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if c.Age < 0 {
		return nil, errs.Invalid("age must not be negative")
	}
	if err := m.repo.CreateCharacter(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Roster lists the characters of a civilization ordered by name, each with
// its job resolved against the current catalog.
func (m *Manager) Roster(ctx context.Context, civID int64) ([]Member, error) {
	chars, err := m.repo.Characters(ctx, civID)
	if err != nil {
		return nil, err
	}
	catalog, err := m.repo.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*model.Job, len(catalog))
	for i := range catalog {
		byID[catalog[i].ID] = &catalog[i]
	}
	out := make([]Member, 0, len(chars))
	for _, c := range chars {
		mem := Member{Character: c}
		if c.JobID != nil {
			mem.Job = byID[*c.JobID]
		}
		out = append(out, mem)
	}
	return out, nil
}

// CompatibleJobs returns the catalog entries the character qualifies for.
func (m *Manager) CompatibleJobs(ctx context.Context, civID, charID int64) ([]model.Job, error) {
	c, err := m.repo.Character(ctx, civID, charID)
	if err != nil {
		return nil, err
	}
	catalog, err := m.repo.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	return jobs.CompatibleJobs(jobs.StatsOf(c), catalog), nil
}

func orDefault(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
