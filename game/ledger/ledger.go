// Package ledger owns the four-counter resource balance of a civilization.
//
// Counters never go negative. Every mutation reads the current row, computes
// the new balance and writes it back with a version-guarded conditional
// update, so a concurrent writer makes the update miss instead of silently
// overwriting. A missed update is retried from a fresh read.
package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kasuganosora/civmanager/game/errs"
	"github.com/kasuganosora/civmanager/model"
	"go.uber.org/zap"
)

// Resource names one counter.
type Resource string

const (
	Food          Resource = "food"
	Gold          Resource = "gold"
	Materials     Resource = "materials"
	MilitaryPower Resource = "military_power"
)

// Resources lists every counter in declaration order. Adjust reports the
// first offending counter in this order.
var Resources = []Resource{Food, Gold, Materials, MilitaryPower}

// ParseResource validates a counter name.
func ParseResource(name string) (Resource, error) {
	for _, r := range Resources {
		if string(r) == name {
			return r, nil
		}
	}
	return "", errs.Invalid("unknown resource %q", name)
}

// Balance is a snapshot of the four counters.
type Balance struct {
	Food          int64     `json:"food"`
	Gold          int64     `json:"gold"`
	Materials     int64     `json:"materials"`
	MilitaryPower int64     `json:"military_power"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Get returns the value of one counter.
func (b Balance) Get(r Resource) int64 {
	switch r {
	case Food:
		return b.Food
	case Gold:
		return b.Gold
	case Materials:
		return b.Materials
	case MilitaryPower:
		return b.MilitaryPower
	}
	return 0
}

func (b *Balance) set(r Resource, v int64) {
	switch r {
	case Food:
		b.Food = v
	case Gold:
		b.Gold = v
	case Materials:
		b.Materials = v
	case MilitaryPower:
		b.MilitaryPower = v
	}
}

func fromRow(row *model.CivilizationResources) Balance {
	return Balance{
		Food:          row.Food,
		Gold:          row.Gold,
		Materials:     row.Materials,
		MilitaryPower: row.MilitaryPower,
		UpdatedAt:     row.UpdatedAt,
	}
}

func (b Balance) applyTo(row *model.CivilizationResources) {
	row.Food = b.Food
	row.Gold = b.Gold
	row.Materials = b.Materials
	row.MilitaryPower = b.MilitaryPower
}

// Repository is the slice of the persistence store the ledger needs.
type Repository interface {
	Resources(ctx context.Context, civID int64) (*model.CivilizationResources, error)
	UpdateResourcesIfVersion(ctx context.Context, res *model.CivilizationResources, prev int64) (bool, error)
}

// Observer is told about every ledger call. op is "add", "consume" or
// "adjust"; err is nil on success.
type Observer func(op string, civID int64, err error)

// Ledger applies add/consume/adjust operations.
type Ledger struct {
	repo     Repository
	retries  int
	logger   *zap.Logger
	observer Observer
}

// New creates a Ledger. retries bounds how many times a write that lost a
// race is re-attempted before failing with errs.ErrTransient.
func New(repo Repository, retries int, logger *zap.Logger) *Ledger {
	if retries < 1 {
		retries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, retries: retries, logger: logger}
}

// SetObserver installs a callback run after every mutation.
func (l *Ledger) SetObserver(o Observer) { l.observer = o }

// Balance reads the current balance of a civilization.
func (l *Ledger) Balance(ctx context.Context, civID int64) (Balance, error) {
	row, err := l.repo.Resources(ctx, civID)
	if err != nil {
		return Balance{}, err
	}
	return fromRow(row), nil
}

// Add increases counter r by amount. A negative amount is accepted and the
// result is clamped to zero instead of failing; this mirrors how resource
// grants have always behaved. A zero amount is rejected.
func (l *Ledger) Add(ctx context.Context, civID int64, r Resource, amount int64) (Balance, error) {
	b, err := l.add(ctx, civID, r, amount)
	l.observe("add", civID, err)
	return b, err
}

func (l *Ledger) add(ctx context.Context, civID int64, r Resource, amount int64) (Balance, error) {
	if _, err := ParseResource(string(r)); err != nil {
		return Balance{}, err
	}
	if amount == 0 {
		return Balance{}, errs.Invalid("amount must be non-zero")
	}
	return l.mutate(ctx, civID, func(b *Balance) error {
		cur := b.Get(r)
		if overflows(cur, amount) {
			return errs.Invalid("adding %d to %s would overflow", amount, r)
		}
		next := cur + amount
		if next < 0 {
			next = 0
		}
		b.set(r, next)
		return nil
	})
}

// Consume decreases counter r by amount only if the current value covers it.
// Military power can never be consumed.
func (l *Ledger) Consume(ctx context.Context, civID int64, r Resource, amount int64) (Balance, error) {
	b, err := l.consume(ctx, civID, r, amount)
	l.observe("consume", civID, err)
	return b, err
}

func (l *Ledger) consume(ctx context.Context, civID int64, r Resource, amount int64) (Balance, error) {
	if r == MilitaryPower {
		return Balance{}, errs.Invalid("military power can only be increased")
	}
	if _, err := ParseResource(string(r)); err != nil {
		return Balance{}, err
	}
	if amount <= 0 {
		return Balance{}, errs.Invalid("amount must be positive")
	}
	return l.mutate(ctx, civID, func(b *Balance) error {
		cur := b.Get(r)
		if cur < amount {
			return &errs.InsufficientResourceError{Resource: string(r), Requested: amount, Available: cur}
		}
		b.set(r, cur-amount)
		return nil
	})
}

// Adjust applies several signed deltas as one unit: all of them or none. The
// first counter (in declaration order) that would go negative is reported.
// An empty delta set returns the current balance without writing.
func (l *Ledger) Adjust(ctx context.Context, civID int64, deltas map[Resource]int64) (Balance, error) {
	b, err := l.adjust(ctx, civID, deltas)
	l.observe("adjust", civID, err)
	return b, err
}

func (l *Ledger) adjust(ctx context.Context, civID int64, deltas map[Resource]int64) (Balance, error) {
	for r, d := range deltas {
		if _, err := ParseResource(string(r)); err != nil {
			return Balance{}, err
		}
		if d == math.MinInt64 {
			return Balance{}, errs.Invalid("delta for %s out of range", r)
		}
	}
	if len(deltas) == 0 {
		return l.Balance(ctx, civID)
	}
	return l.mutate(ctx, civID, func(b *Balance) error {
		next := *b
		for _, r := range Resources {
			d, ok := deltas[r]
			if !ok {
				continue
			}
			cur := b.Get(r)
			if overflows(cur, d) {
				return errs.Invalid("adjusting %s by %d would overflow", r, d)
			}
			if cur+d < 0 {
				return &errs.InsufficientResourceError{Resource: string(r), Requested: -d, Available: cur}
			}
			next.set(r, cur+d)
		}
		*b = next
		return nil
	})
}

// overflows reports whether cur+delta exceeds math.MaxInt64. Counters are
// never negative, so only positive deltas can overflow.
func overflows(cur, delta int64) bool {
	return delta > 0 && cur > math.MaxInt64-delta
}

// mutate runs the read/compute/conditional-write cycle. fn edits the balance
// in place or returns an error, in which case nothing is written.
func (l *Ledger) mutate(ctx context.Context, civID int64, fn func(b *Balance) error) (Balance, error) {
	for attempt := 1; attempt <= l.retries; attempt++ {
		row, err := l.repo.Resources(ctx, civID)
		if err != nil {
			return Balance{}, err
		}
		b := fromRow(row)
		if err := fn(&b); err != nil {
			return fromRow(row), err
		}
		b.applyTo(row)
		prev := row.Version
		ok, err := l.repo.UpdateResourcesIfVersion(ctx, row, prev)
		if err != nil {
			return Balance{}, err
		}
		if ok {
			b.UpdatedAt = row.UpdatedAt
			return b, nil
		}
		l.logger.Debug("ledger write lost race, retrying",
			zap.Int64("civilization_id", civID),
			zap.Int("attempt", attempt))
	}
	return Balance{}, errs.Transient("ledger: update resources",
		fmt.Errorf("civilization %d changed concurrently %d times", civID, l.retries))
}

func (l *Ledger) observe(op string, civID int64, err error) {
	if l.observer != nil {
		l.observer(op, civID, err)
	}
}
