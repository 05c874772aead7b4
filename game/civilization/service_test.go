package civilization

import (
	"context"
	"sync"
	"testing"

	"github.com/kasuganosora/civmanager/game/errs"
	"github.com/kasuganosora/civmanager/model"
	"github.com/kasuganosora/civmanager/store"
	"github.com/kasuganosora/civmanager/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st := store.New(testutil.SetupTestDB(t))
	return NewService(st, testutil.TestGameConfig(), zap.NewNop()), st
}

func TestFound_SeedsStartingBalance(t *testing.T) {
	svc, _ := newService(t)

	view, err := svc.Found(context.Background(), 7, "The Golden Empire")
	require.NoError(t, err)
	assert.Equal(t, int64(7), view.UserID)
	assert.Equal(t, "The Golden Empire", view.Name)
	assert.Equal(t, int64(100), view.Resources.Food)
	assert.Equal(t, int64(50), view.Resources.Gold)
	assert.Equal(t, int64(30), view.Resources.Materials)
	assert.Equal(t, int64(0), view.Resources.MilitaryPower)

	got, err := svc.ByUser(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, view.ID, got.ID)
	assert.Equal(t, int64(100), got.Resources.Food)
}

func TestFound_Twice(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	_, err := svc.Found(ctx, 7, "Ur")
	require.NoError(t, err)
	_, err = svc.Found(ctx, 7, "Kish")
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)

	var n int64
	st.DB().Model(&model.Civilization{}).Where("user_id = ?", 7).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestFound_CompletesCivilizationWithoutResources(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	legacy := &model.Civilization{UserID: 7, Name: "Half-built"}
	require.NoError(t, st.CreateCivilization(ctx, legacy))

	has, err := svc.HasCivilization(ctx, 7)
	require.NoError(t, err)
	assert.False(t, has)

	view, err := svc.Found(ctx, 7, "ignored")
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, view.ID)
	assert.Equal(t, "Half-built", view.Name)
	assert.Equal(t, int64(100), view.Resources.Food)

	has, err = svc.HasCivilization(ctx, 7)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestFound_RollsBackOnResourceFailure(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	require.NoError(t, st.DB().Migrator().DropTable(&model.CivilizationResources{}))

	_, err := svc.Found(ctx, 7, "Ur")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTransient)

	_, err = st.CivilizationByUser(ctx, 7)
	assert.ErrorIs(t, err, errs.ErrNotFound, "civilization row must be rolled back")
}

func TestFound_ValidatesName(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Found(context.Background(), 7, "   ")
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)

	long := make([]byte, maxNameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.Found(context.Background(), 7, string(long))
	assert.ErrorIs(t, err, errs.ErrInvalidOperation)
}

func TestFound_ConcurrentAttemptsCreateOne(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Found(ctx, 9, "Ur"); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)

	var n int64
	st.DB().Model(&model.CivilizationResources{}).Count(&n)
	assert.Equal(t, int64(1), n)
}

func TestByUser_NotFound(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.ByUser(context.Background(), 1)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	has, err := svc.HasCivilization(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRename(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Found(ctx, 7, "Ur")
	require.NoError(t, err)

	civ, err := svc.Rename(ctx, 7, " Babylon ")
	require.NoError(t, err)
	assert.Equal(t, "Babylon", civ.Name)

	_, err = svc.Rename(ctx, 8, "Nobody")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
