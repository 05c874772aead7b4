// Package civilization founds civilizations and reads them back per account.
package civilization

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kasuganosora/civmanager/config"
	"github.com/kasuganosora/civmanager/game/errs"
	"github.com/kasuganosora/civmanager/game/ledger"
	"github.com/kasuganosora/civmanager/model"
	"github.com/kasuganosora/civmanager/store"
	"go.uber.org/zap"
)

const maxNameLen = 64

// View is a civilization together with its current balance.
type View struct {
	*model.Civilization
	Resources ledger.Balance `json:"resources"`
}

// Service owns the founding transaction.
type Service struct {
	st     *store.Store
	cfg    config.GameConfig
	logger *zap.Logger
}

// NewService creates a Service. Starting balances come from cfg.
func NewService(st *store.Store, cfg config.GameConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{st: st, cfg: cfg, logger: logger}
}

func (s *Service) seed(civID int64) *model.CivilizationResources {
	return &model.CivilizationResources{
		CivilizationID: civID,
		Food:           s.cfg.StartFood,
		Gold:           s.cfg.StartGold,
		Materials:      s.cfg.StartMaterials,
		MilitaryPower:  s.cfg.StartMilitaryPower,
		UpdatedAt:      time.Now(),
	}
}

// Found creates the civilization of userID and its starting balance in one
// transaction. A civilization left without a resource row by an earlier
// failure is completed instead of duplicated. Founding twice fails with
// errs.ErrInvalidOperation.
func (s *Service) Found(ctx context.Context, userID int64, name string) (*View, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Invalid("civilization name is required")
	}
	if len(name) > maxNameLen {
		return nil, errs.Invalid("civilization name is too long")
	}

	var view *View
	err := s.st.Transaction(ctx, func(tx *store.Store) error {
		civ, err := tx.CivilizationByUser(ctx, userID)
		switch {
		case errors.Is(err, errs.ErrNotFound):
			civ = &model.Civilization{UserID: userID, Name: name}
			if err := tx.CreateCivilization(ctx, civ); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if _, err := tx.Resources(ctx, civ.ID); err == nil {
				return errs.Invalid("account already owns a civilization")
			} else if !errors.Is(err, errs.ErrNotFound) {
				return err
			}
			s.logger.Warn("completing civilization without resources",
				zap.Int64("user_id", userID),
				zap.Int64("civilization_id", civ.ID))
		}

		res := s.seed(civ.ID)
		if err := tx.CreateResources(ctx, res); err != nil {
			return err
		}
		view = &View{Civilization: civ, Resources: balanceOf(res)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("civilization founded",
		zap.Int64("user_id", userID),
		zap.Int64("civilization_id", view.ID),
		zap.String("name", view.Name))
	return view, nil
}

// ByUser returns the civilization of userID. A civilization without its
// resource row is reported as not found so the owner is sent back to setup.
func (s *Service) ByUser(ctx context.Context, userID int64) (*View, error) {
	civ, err := s.st.CivilizationByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	res, err := s.st.Resources(ctx, civ.ID)
	if err != nil {
		return nil, err
	}
	return &View{Civilization: civ, Resources: balanceOf(res)}, nil
}

// HasCivilization reports whether userID owns a complete civilization.
func (s *Service) HasCivilization(ctx context.Context, userID int64) (bool, error) {
	_, err := s.ByUser(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Rename changes the display name of the civilization owned by userID.
func (s *Service) Rename(ctx context.Context, userID int64, name string) (*model.Civilization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errs.Invalid("civilization name is required")
	}
	if len(name) > maxNameLen {
		return nil, errs.Invalid("civilization name is too long")
	}
	civ, err := s.st.CivilizationByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.st.RenameCivilization(ctx, civ.ID, name)
}

func balanceOf(res *model.CivilizationResources) ledger.Balance {
	return ledger.Balance{
		Food:          res.Food,
		Gold:          res.Gold,
		Materials:     res.Materials,
		MilitaryPower: res.MilitaryPower,
		UpdatedAt:     res.UpdatedAt,
	}
}
