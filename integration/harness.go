// Package integration runs the HTTP server in-process and drives it the way
// the browser client does.
package integration

import (
	"context"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/civmanager/api/rest"
	"github.com/kasuganosora/civmanager/api/sse"
	"github.com/kasuganosora/civmanager/audit"
	"github.com/kasuganosora/civmanager/auth"
	"github.com/kasuganosora/civmanager/cache"
	"github.com/kasuganosora/civmanager/catalog"
	"github.com/kasuganosora/civmanager/config"
	"github.com/kasuganosora/civmanager/game/assignment"
	"github.com/kasuganosora/civmanager/game/civilization"
	"github.com/kasuganosora/civmanager/game/ledger"
	"github.com/kasuganosora/civmanager/metrics"
	mw "github.com/kasuganosora/civmanager/middleware"
	"github.com/kasuganosora/civmanager/scheduler"
	"github.com/kasuganosora/civmanager/store"
	"github.com/kasuganosora/civmanager/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// ClientOrigin is the only browser origin the test server accepts.
const ClientOrigin = "http://client.test"

// Outbox captures recovery e-mails.
type Outbox struct {
	mu    sync.Mutex
	links map[string]string
}

// SendPasswordReset implements auth.Mailer.
func (o *Outbox) SendPasswordReset(_ context.Context, email, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.links == nil {
		o.links = make(map[string]string)
	}
	o.links[email] = link
	return nil
}

// ResetToken returns the token of the last link mailed to email.
func (o *Outbox) ResetToken(t *testing.T, email string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	link, ok := o.links[email]
	require.True(t, ok, "no recovery mail for %s", email)
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("token")
}

// TestServer wraps a real HTTP server with every subsystem wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Auth   *auth.Provider
	Outbox *Outbox
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	st := store.New(db)
	game := testutil.TestGameConfig()

	sec := config.SecurityConfig{
		JWTSecret:         "integration-test-secret",
		JWTTTLH:           72 * time.Hour,
		RecoveryTTL:       time.Hour,
		RateLimitRPS:      1000,
		RateLimitBurst:    2000,
		AllowedOrigins:    []string{ClientOrigin},
		MinSignUpPassword: 6,
		MinResetPassword:  8,
		BcryptCost:        bcrypt.MinCost,
	}
	require.NoError(t, catalog.Seed(context.Background(), st, catalog.Defaults(), logger))

	// ---- Services ----
	outbox := &Outbox{}
	provider := auth.NewProvider(db, c, pubsub, sec, ClientOrigin, outbox, logger)
	led := ledger.New(st, game.LedgerRetries, logger)
	led.SetObserver(metrics.ObserveLedger)
	auditSvc := audit.New(db, logger)
	sched := scheduler.New(logger)
	sched.AddTicker("purge_password_resets", time.Hour, func(ctx context.Context) error {
		_, err := provider.PurgeExpiredResets(ctx)
		return err
	})

	ctx, cancel := context.WithCancel(context.Background())

	// ---- Gin ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger), metrics.Middleware())
	r.Use(mw.RateLimit(ctx, rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = sec.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", mw.TraceIDHeader}
	r.Use(cors.New(corsConfig))

	apirest.Register(r.Group("/api"), apirest.Deps{
		Server:   config.ServerConfig{AdminKey: "integration-admin"},
		Security: sec,
		Store:    st,
		Cache:    c,
		Auth:     provider,
		Civs:     civilization.NewService(st, game, logger),
		Ledger:   led,
		Roster:   assignment.NewManager(st, game.MaxCharacters, logger),
		Audit:    auditSvc,
		Sched:    sched,
		Logger:   logger,
	})
	r.GET("/sse", sse.NewHandler(provider, sec.AllowedOrigins, logger).ServeSSE)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		sched.Stop()
		auditSvc.Stop(context.Background())
	})

	return &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Auth:   provider,
		Outbox: outbox,
		Server: srv,
		URL:    srv.URL,
		Sec:    sec,
	}
}
