package rest_test

import (
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type balanceBody struct {
	Food          int64 `json:"food"`
	Gold          int64 `json:"gold"`
	Materials     int64 `json:"materials"`
	MilitaryPower int64 `json:"military_power"`
}

func TestResources_RequiresCivilization(t *testing.T) {
	e := newEnv(t)
	s := e.signUp(t, "olga@example.com")
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/api/resources", s.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/resources", "", nil).Code)
}

func TestResources_Balance(t *testing.T) {
	e := newEnv(t)
	token := e.player(t, "pete@example.com")
	w := e.do(http.MethodGet, "/api/resources", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var b balanceBody
	decode(t, w, &b)
	assert.Equal(t, balanceBody{Food: 100, Gold: 50, Materials: 30}, b)
}

func TestResources_AddAndConsume(t *testing.T) {
	e := newEnv(t)
	token := e.player(t, "quinn@example.com")

	w := e.do(http.MethodPost, "/api/resources/add", token, map[string]interface{}{"resource": "military_power", "amount": 7})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var b balanceBody
	decode(t, w, &b)
	assert.Equal(t, int64(7), b.MilitaryPower)

	w = e.do(http.MethodPost, "/api/resources/consume", token, map[string]interface{}{"resource": "gold", "amount": 20})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &b)
	assert.Equal(t, int64(30), b.Gold)
}

func TestResources_ConsumeInsufficient(t *testing.T) {
	e := newEnv(t)
	token := e.player(t, "rita@example.com")

	w := e.do(http.MethodPost, "/api/resources/consume", token, map[string]interface{}{"resource": "materials", "amount": 31})
	require.Equal(t, http.StatusConflict, w.Code)
	var body struct {
		Error     string `json:"error"`
		Resource  string `json:"resource"`
		Requested int64  `json:"requested"`
		Available int64  `json:"available"`
	}
	decode(t, w, &body)
	assert.Equal(t, "materials", body.Resource)
	assert.Equal(t, int64(31), body.Requested)
	assert.Equal(t, int64(30), body.Available)

	w = e.do(http.MethodGet, "/api/resources", token, nil)
	var b balanceBody
	decode(t, w, &b)
	assert.Equal(t, int64(30), b.Materials)
}

func TestResources_InvalidOperations(t *testing.T) {
	e := newEnv(t)
	token := e.player(t, "sam@example.com")

	cases := []map[string]interface{}{
		{"resource": "military_power", "amount": 1},
		{"resource": "food", "amount": 0},
		{"resource": "food", "amount": -5},
		{"resource": "wood", "amount": 1},
	}
	for _, body := range cases {
		w := e.do(http.MethodPost, "/api/resources/consume", token, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%v", body)
	}
	w := e.do(http.MethodPost, "/api/resources/add", token, map[string]interface{}{"resource": "food", "amount": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResources_AddNegativeClamps(t *testing.T) {
	e := newEnv(t)
	token := e.player(t, "tina@example.com")
	w := e.do(http.MethodPost, "/api/resources/add", token, map[string]interface{}{"resource": "food", "amount": -500})
	require.Equal(t, http.StatusOK, w.Code)
	var b balanceBody
	decode(t, w, &b)
	assert.Equal(t, int64(0), b.Food)
}

func TestResources_AdjustAllOrNothing(t *testing.T) {
	e := newEnv(t)
	token := e.player(t, "uma@example.com")

	w := e.do(http.MethodPost, "/api/resources/adjust", token, map[string]interface{}{
		"deltas": map[string]int64{"food": -10, "gold": -60},
	})
	require.Equal(t, http.StatusConflict, w.Code)

	w = e.do(http.MethodGet, "/api/resources", token, nil)
	var b balanceBody
	decode(t, w, &b)
	assert.Equal(t, int64(100), b.Food)
	assert.Equal(t, int64(50), b.Gold)

	w = e.do(http.MethodPost, "/api/resources/adjust", token, map[string]interface{}{
		"deltas": map[string]int64{"food": -10, "gold": 5, "materials": -30},
	})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &b)
	assert.Equal(t, balanceBody{Food: 90, Gold: 55, Materials: 0}, b)

	w = e.do(http.MethodPost, "/api/resources/adjust", token, map[string]interface{}{
		"deltas": map[string]int64{"stone": 1},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResources_ScopedToOwner(t *testing.T) {
	e := newEnv(t)
	a := e.player(t, "vera@example.com")
	b := e.player(t, "walt@example.com")

	e.do(http.MethodPost, "/api/resources/consume", a, map[string]interface{}{"resource": "food", "amount": 100})

	w := e.do(http.MethodGet, "/api/resources", b, nil)
	var bal balanceBody
	decode(t, w, &bal)
	assert.Equal(t, int64(100), bal.Food)
}

func TestResources_OverflowIsBadRequest(t *testing.T) {
	e := newEnv(t)
	token := e.player(t, "otto@example.com")

	w := e.do(http.MethodPost, "/api/resources/add", token, map[string]interface{}{"resource": "food", "amount": int64(math.MaxInt64)})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	w = e.do(http.MethodPost, "/api/resources/adjust", token, map[string]interface{}{"deltas": map[string]int64{"gold": math.MaxInt64}})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/resources", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var b balanceBody
	decode(t, w, &b)
	assert.Equal(t, balanceBody{Food: 100, Gold: 50, Materials: 30}, b)
}
