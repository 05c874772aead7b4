// Package jobs decides which catalog jobs a character qualifies for.
package jobs

import "github.com/kasuganosora/civmanager/model"

// Stats are the three attributes job thresholds are checked against.
type Stats struct {
	Strength     int `json:"strength"`
	Intelligence int `json:"intelligence"`
	Charisma     int `json:"charisma"`
}

// StatsOf extracts the eligibility stats of a character.
func StatsOf(c *model.Character) Stats {
	return Stats{Strength: c.Strength, Intelligence: c.Intelligence, Charisma: c.Charisma}
}

// IsEligible reports whether s meets every minimum of job. All three
// thresholds must hold at once.
func IsEligible(s Stats, job *model.Job) bool {
	return s.Strength >= job.MinStrength &&
		s.Intelligence >= job.MinIntelligence &&
		s.Charisma >= job.MinCharisma
}

// CompatibleJobs returns the jobs s is eligible for, in catalog order.
func CompatibleJobs(s Stats, catalog []model.Job) []model.Job {
	out := make([]model.Job, 0, len(catalog))
	for i := range catalog {
		if IsEligible(s, &catalog[i]) {
			out = append(out, catalog[i])
		}
	}
	return out
}
