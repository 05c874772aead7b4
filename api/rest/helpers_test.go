package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/civmanager/api/rest"
	"github.com/kasuganosora/civmanager/audit"
	"github.com/kasuganosora/civmanager/auth"
	"github.com/kasuganosora/civmanager/catalog"
	"github.com/kasuganosora/civmanager/config"
	"github.com/kasuganosora/civmanager/game/assignment"
	"github.com/kasuganosora/civmanager/game/civilization"
	"github.com/kasuganosora/civmanager/game/ledger"
	mw "github.com/kasuganosora/civmanager/middleware"
	"github.com/kasuganosora/civmanager/scheduler"
	"github.com/kasuganosora/civmanager/store"
	"github.com/kasuganosora/civmanager/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const adminKey = "test-key"

func init() {
	gin.SetMode(gin.TestMode)
}

// captureMailer keeps the last recovery link.
type captureMailer struct {
	mu   sync.Mutex
	link string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.link = link
	return nil
}

func (m *captureMailer) token(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := url.Parse(m.link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

type testEnv struct {
	r      *gin.Engine
	db     *gorm.DB
	st     *store.Store
	auth   *auth.Provider
	sched  *scheduler.Scheduler
	mailer *captureMailer
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	st := store.New(db)
	game := testutil.TestGameConfig()
	game.MaxCharacters = 3
	sec := config.SecurityConfig{
		JWTSecret:         "test-secret",
		JWTTTLH:           time.Hour,
		RecoveryTTL:       10 * time.Minute,
		MinSignUpPassword: 6,
		MinResetPassword:  8,
		BcryptCost:        bcrypt.MinCost,
	}
	require.NoError(t, catalog.Seed(context.Background(), st, catalog.Defaults(), logger))

	mailer := &captureMailer{}
	provider := auth.NewProvider(db, c, ps, sec, "http://client.test", mailer, logger)
	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	r := gin.New()
	r.Use(mw.TraceID())
	rest.Register(r.Group("/api"), rest.Deps{
		Server:   config.ServerConfig{AdminKey: adminKey},
		Security: sec,
		Store:    st,
		Cache:    c,
		Auth:     provider,
		Civs:     civilization.NewService(st, game, logger),
		Ledger:   ledger.New(st, game.LedgerRetries, logger),
		Roster:   assignment.NewManager(st, game.MaxCharacters, logger),
		Audit:    auditSvc,
		Sched:    sched,
		Logger:   logger,
	})
	return &testEnv{r: r, db: db, st: st, auth: provider, sched: sched, mailer: mailer}
}

// do sends a JSON request. headers are key/value pairs.
func (e *testEnv) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *testEnv) admin(method, path string, body interface{}) *httptest.ResponseRecorder {
	return e.do(method, path, "", body, "X-Admin-Key", adminKey)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type sessionBody struct {
	Token     string `json:"token"`
	AccountID int64  `json:"account_id"`
	Recovery  bool   `json:"recovery"`
}

// signUp registers email and returns its session.
func (e *testEnv) signUp(t *testing.T, email string) sessionBody {
	t.Helper()
	w := e.do(http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    email,
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s sessionBody
	decode(t, w, &s)
	return s
}

// player signs up and founds a civilization, returning the token.
func (e *testEnv) player(t *testing.T, email string) string {
	t.Helper()
	s := e.signUp(t, email)
	w := e.do(http.MethodPost, "/api/civilization", s.Token, map[string]string{"name": "Ur"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return s.Token
}
