// Package catalog loads the job catalog seed and writes it to the store.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasuganosora/civmanager/model"
	"github.com/kasuganosora/civmanager/store"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Entry is one job definition in the seed file.
type Entry struct {
	Name            string `mapstructure:"name" json:"name"`
	Description     string `mapstructure:"description" json:"description"`
	MinStrength     int    `mapstructure:"min_strength" json:"min_strength"`
	MinIntelligence int    `mapstructure:"min_intelligence" json:"min_intelligence"`
	MinCharisma     int    `mapstructure:"min_charisma" json:"min_charisma"`
}

// Job converts the entry to a catalog row.
func (e Entry) Job() *model.Job {
	job := &model.Job{
		Name:            strings.TrimSpace(e.Name),
		MinStrength:     e.MinStrength,
		MinIntelligence: e.MinIntelligence,
		MinCharisma:     e.MinCharisma,
	}
	if d := strings.TrimSpace(e.Description); d != "" {
		job.Description = &d
	}
	return job
}

// Defaults is the catalog used when no seed file is configured.
func Defaults() []Entry {
	return []Entry{
		{Name: "Farmer", Description: "Works the fields to feed the people."},
		{Name: "Builder", Description: "Raises walls and granaries.", MinStrength: 12},
		{Name: "Soldier", Description: "Defends the civilization.", MinStrength: 15},
		{Name: "Scholar", Description: "Keeps records and studies the stars.", MinIntelligence: 15},
		{Name: "Merchant", Description: "Trades surplus for gold.", MinIntelligence: 10, MinCharisma: 12},
	}
}

// Load reads the "jobs" list of a YAML (or any viper-supported) file.
func Load(path string) ([]Entry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	var file struct {
		Jobs []Entry `mapstructure:"jobs"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	if err := Validate(file.Jobs); err != nil {
		return nil, err
	}
	return file.Jobs, nil
}

// Validate checks names are present and unique and thresholds non-negative.
func Validate(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return fmt.Errorf("catalog: entry %d has no name", i)
		}
		if seen[name] {
			return fmt.Errorf("catalog: duplicate job %q", name)
		}
		seen[name] = true
		if e.MinStrength < 0 || e.MinIntelligence < 0 || e.MinCharisma < 0 {
			return fmt.Errorf("catalog: job %q has a negative threshold", name)
		}
	}
	return nil
}

// Seed upserts every entry by name. Jobs missing from entries are kept.
func Seed(ctx context.Context, st *store.Store, entries []Entry, logger *zap.Logger) error {
	if err := Validate(entries); err != nil {
		return err
	}
	for _, e := range entries {
		if err := st.UpsertJob(ctx, e.Job()); err != nil {
			return fmt.Errorf("catalog: seed %q: %w", e.Name, err)
		}
	}
	logger.Info("job catalog seeded", zap.Int("jobs", len(entries)))
	return nil
}
