package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/kasuganosora/civmanager/game/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTab(ts *TestServer) (*lifecycle.Session, *Client) {
	cl := NewClient(ts.URL)
	return lifecycle.NewSession(cl, cl, cl, zap.NewNop()), cl
}

// register switches a fresh tab to the sign-up screen and creates an account.
func register(t *testing.T, ctx context.Context, tab *lifecycle.Session, email string) {
	t.Helper()
	_, err := tab.Switch()
	require.NoError(t, err)
	state, err := tab.SignUp(ctx, email, "secret1")
	require.NoError(t, err)
	require.Equal(t, lifecycle.Setup, state)
}

func TestLifecycle_SignUpFoundAndPlay(t *testing.T) {
	ts := NewTestServer(t)
	ctx := context.Background()
	tab, cl := newTab(ts)

	state, err := tab.Switch()
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Register, state)

	state, err = tab.SignUp(ctx, "founder@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Setup, state)

	state, err = tab.Found(ctx, "Sumer")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Game, state)

	id, ok := tab.Identity()
	require.True(t, ok)
	bal, err := cl.Resources(ctx, id.Token)
	require.NoError(t, err)
	assert.Equal(t, Balance{Food: 100, Gold: 50, Materials: 30, MilitaryPower: 0}, bal)

	state, err = tab.SignOut(ctx)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Login, state)

	_, err = cl.Resources(ctx, id.Token)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	state, err = tab.SignIn(ctx, "founder@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Game, state, "existing civilization goes straight to the game")
}

func TestLifecycle_WrongPasswordStaysOnLogin(t *testing.T) {
	ts := NewTestServer(t)
	ctx := context.Background()
	tab, cl := newTab(ts)
	_, err := cl.SignUp(ctx, "someone@example.com", "secret1")
	require.NoError(t, err)

	state, err := tab.SignIn(ctx, "someone@example.com", "nope-nope")
	require.Error(t, err)
	assert.Equal(t, lifecycle.Login, state)
	assert.False(t, tab.Busy())
}

func TestLifecycle_RecoveryReachesEveryTab(t *testing.T) {
	ts := NewTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tab1, cl := newTab(ts)
	register(t, ctx, tab1, "ruler@example.com")
	_, err := tab1.Found(ctx, "Uruk")
	require.NoError(t, err)

	id, _ := tab1.Identity()
	signals, err := cl.Signals(ctx, id.Token)
	require.NoError(t, err)
	go tab1.Watch(ctx, signals)

	// The recovery link is opened in another tab.
	require.NoError(t, cl.RequestReset(ctx, "ruler@example.com"))
	tab2, _ := newTab(ts)
	state, err := tab2.OpenRecovery(ctx, ts.Outbox.ResetToken(t, "ruler@example.com"))
	require.NoError(t, err)
	assert.Equal(t, lifecycle.ResetPassword, state)

	assert.Eventually(t, func() bool {
		return tab1.State() == lifecycle.ResetPassword
	}, 3*time.Second, 20*time.Millisecond)

	_, err = tab2.UpdatePassword(ctx, "short")
	require.Error(t, err)

	state, err = tab2.UpdatePassword(ctx, "much-longer-password")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Login, state)

	// The old session died with the password change.
	_, err = cl.Resources(ctx, id.Token)
	require.Error(t, err)

	state, err = tab2.SignIn(ctx, "ruler@example.com", "much-longer-password")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Game, state)
}

func TestLifecycle_SignOutElsewhere(t *testing.T) {
	ts := NewTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tab1, cl := newTab(ts)
	register(t, ctx, tab1, "twotabs@example.com")
	_, err := tab1.Found(ctx, "Lagash")
	require.NoError(t, err)
	id, _ := tab1.Identity()
	signals, err := cl.Signals(ctx, id.Token)
	require.NoError(t, err)
	go tab1.Watch(ctx, signals)

	tab2, _ := newTab(ts)
	state, err := tab2.SignIn(ctx, "twotabs@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Game, state)

	_, err = tab2.SignOut(ctx)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return tab1.State() == lifecycle.Login
	}, 3*time.Second, 20*time.Millisecond)

	// The screen and the server agree: tab1's token is gone as well.
	_, err = cl.Resources(ctx, id.Token)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func TestSessionEndpointMatchesClientState(t *testing.T) {
	ts := NewTestServer(t)
	ctx := context.Background()
	tab, cl := newTab(ts)
	register(t, ctx, tab, "resume@example.com")
	id, _ := tab.Identity()

	var resp struct {
		State string `json:"state"`
	}
	require.NoError(t, cl.Do(ctx, http.MethodGet, "/api/session", id.Token, nil, &resp))
	assert.Equal(t, string(tab.State()), resp.State)

	_, err := tab.Found(ctx, "Kish")
	require.NoError(t, err)
	require.NoError(t, cl.Do(ctx, http.MethodGet, "/api/session", id.Token, nil, &resp))
	assert.Equal(t, string(lifecycle.Game), resp.State)

	// A fresh tab resuming the stored token lands on the same screen.
	fresh, _ := newTab(ts)
	state, err := fresh.Resume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.Game, state)
}

func TestHealthAndCORS(t *testing.T) {
	ts := NewTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/session", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", ClientOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, ClientOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodOptions, ts.URL+"/api/session", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
