// Package auth is the account provider: sign-up, sign-in, sign-out and the
// password recovery flow. Sessions are HS256 JWTs that stay valid only while
// their "session:<token>" key exists in the cache; every token of an account
// is also tracked in a set so all of them can be revoked at once.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/civmanager/cache"
	"github.com/kasuganosora/civmanager/config"
	"github.com/kasuganosora/civmanager/game/errs"
	mw "github.com/kasuganosora/civmanager/middleware"
	"github.com/kasuganosora/civmanager/model"
	"github.com/kasuganosora/civmanager/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountBanned      = errors.New("account banned")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password too short")
	ErrInvalidSession     = errors.New("session expired")
	ErrRecoveryRequired   = errors.New("a recovery session is required")
	ErrInvalidResetToken  = errors.New("recovery link is invalid or expired")
)

// Event types published on an account's channel.
const (
	EventPasswordRecovery = "password-recovery"
	EventSignedOut        = "signed-out"
)

// Event is one auth notification for an account.
type Event struct {
	Type      string    `json:"type"`
	AccountID int64     `json:"account_id"`
	At        time.Time `json:"at"`
}

// Session is an issued token.
type Session struct {
	Token     string    `json:"token"`
	AccountID int64     `json:"account_id"`
	Recovery  bool      `json:"recovery,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Provider implements accounts and sessions.
type Provider struct {
	db        *gorm.DB
	cache     cache.Cache
	pubsub    cache.PubSub
	sec       config.SecurityConfig
	publicURL string
	mailer    Mailer
	logger    *zap.Logger
}

// NewProvider creates a Provider. publicURL is the client origin recovery
// links point at.
func NewProvider(db *gorm.DB, c cache.Cache, ps cache.PubSub, sec config.SecurityConfig,
	publicURL string, mailer Mailer, logger *zap.Logger) *Provider {
	if sec.BcryptCost == 0 {
		sec.BcryptCost = bcrypt.DefaultCost
	}
	if sec.RecoveryTTL == 0 {
		sec.RecoveryTTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}
	return &Provider{db: db, cache: c, pubsub: ps, sec: sec, publicURL: publicURL, mailer: mailer, logger: logger}
}

func sessionKey(token string) string { return "session:" + token }

func accountSessionsKey(accountID int64) string {
	return "account_sessions:" + strconv.FormatInt(accountID, 10)
}

// Channel is the pubsub channel carrying the events of one account.
func Channel(accountID int64) string {
	return "auth:" + strconv.FormatInt(accountID, 10)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if len(email) > 128 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// SignUp registers an account and signs it in.
func (p *Provider) SignUp(ctx context.Context, email, password, ip string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < p.sec.MinSignUpPassword {
		return nil, fmt.Errorf("%w: at least %d characters", ErrWeakPassword, p.sec.MinSignUpPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.sec.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	now := time.Now()
	acc := model.Account{
		Email:        email,
		PasswordHash: string(hash),
		Status:       model.AccountActive,
		LastLoginAt:  &now,
		LastLoginIP:  ip,
	}
	if err := p.db.WithContext(ctx).Create(&acc).Error; err != nil {
		if store.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("auth: create account: %w", err)
	}
	p.logger.Info("account created", zap.Int64("account_id", acc.ID))
	return p.issue(ctx, acc.ID, false)
}

// SignIn verifies the credentials and issues a session.
func (p *Provider) SignIn(ctx context.Context, email, password, ip string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	var acc model.Account
	err = p.db.WithContext(ctx).Where("email = ?", email).Take(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth: find account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if acc.Status == model.AccountBanned {
		return nil, ErrAccountBanned
	}

	// Best-effort.
	_ = p.db.WithContext(ctx).Model(&acc).Updates(map[string]interface{}{
		"last_login_at": time.Now(),
		"last_login_ip": ip,
	})
	return p.issue(ctx, acc.ID, false)
}

func (p *Provider) issue(ctx context.Context, accountID int64, recovery bool) (*Session, error) {
	ttl := p.sec.JWTTTLH
	gen := mw.GenerateToken
	if recovery {
		ttl = p.sec.RecoveryTTL
		gen = mw.GenerateRecoveryToken
	}
	token, err := gen(accountID, p.sec.JWTSecret, ttl)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}
	if err := p.cache.Set(ctx, sessionKey(token), strconv.FormatInt(accountID, 10), ttl); err != nil {
		return nil, fmt.Errorf("auth: store session: %w", err)
	}
	if err := p.cache.SAdd(ctx, accountSessionsKey(accountID), token); err != nil {
		return nil, fmt.Errorf("auth: track session: %w", err)
	}
	return &Session{Token: token, AccountID: accountID, Recovery: recovery, ExpiresAt: time.Now().Add(ttl)}, nil
}

// Validate returns the claims of a live session.
func (p *Provider) Validate(ctx context.Context, token string) (*mw.Claims, error) {
	claims, err := mw.ParseToken(token, p.sec.JWTSecret)
	if err != nil {
		return nil, ErrInvalidSession
	}
	ok, err := p.cache.Exists(ctx, sessionKey(token))
	if err != nil {
		return nil, fmt.Errorf("auth: check session: %w", err)
	}
	if !ok {
		return nil, ErrInvalidSession
	}
	return claims, nil
}

// SignOut ends every session of the token's account, so each tab that is
// told "signed-out" also holds a dead token. Unknown tokens are ignored.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	claims, err := mw.ParseToken(token, p.sec.JWTSecret)
	if err != nil {
		return p.cache.Del(ctx, sessionKey(token))
	}
	if err := p.cache.Del(ctx, sessionKey(token)); err != nil {
		return fmt.Errorf("auth: delete session: %w", err)
	}
	return p.RevokeAll(ctx, claims.AccountID)
}

// RevokeAll deletes every session of an account.
func (p *Provider) RevokeAll(ctx context.Context, accountID int64) error {
	tokens, err := p.cache.SMembers(ctx, accountSessionsKey(accountID))
	if err != nil {
		return fmt.Errorf("auth: list sessions: %w", err)
	}
	keys := make([]string, 0, len(tokens)+1)
	for _, t := range tokens {
		keys = append(keys, sessionKey(t))
	}
	keys = append(keys, accountSessionsKey(accountID))
	if err := p.cache.Del(ctx, keys...); err != nil {
		return fmt.Errorf("auth: revoke sessions: %w", err)
	}
	p.publish(ctx, accountID, EventSignedOut)
	return nil
}

func hashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// RequestPasswordReset mails a recovery link. Unknown addresses succeed
// silently so the endpoint cannot be used to probe for accounts.
func (p *Provider) RequestPasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	var acc model.Account
	err = p.db.WithContext(ctx).Where("email = ?", email).Take(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p.logger.Debug("password reset for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: find account: %w", err)
	}

	raw := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	reset := model.PasswordReset{
		AccountID: acc.ID,
		TokenHash: hashResetToken(raw),
		ExpiresAt: time.Now().Add(p.sec.RecoveryTTL),
	}
	if err := p.db.WithContext(ctx).Create(&reset).Error; err != nil {
		return fmt.Errorf("auth: store reset: %w", err)
	}
	link := strings.TrimRight(p.publicURL, "/") + "/reset-password?token=" + url.QueryEscape(raw)
	if err := p.mailer.SendPasswordReset(ctx, acc.Email, link); err != nil {
		return fmt.Errorf("auth: send reset mail: %w", err)
	}
	return nil
}

// OpenRecovery redeems a recovery link. The link is single use. The
// returned session can only update the password, and a password-recovery
// event is published to every client of the account.
func (p *Provider) OpenRecovery(ctx context.Context, rawToken string) (*Session, error) {
	if rawToken == "" {
		return nil, ErrInvalidResetToken
	}
	now := time.Now()
	var reset model.PasswordReset
	err := p.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", hashResetToken(rawToken), now).
		Take(&reset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidResetToken
	}
	if err != nil {
		return nil, fmt.Errorf("auth: find reset: %w", err)
	}
	res := p.db.WithContext(ctx).Model(&model.PasswordReset{}).
		Where("id = ? AND used_at IS NULL", reset.ID).
		Update("used_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("auth: redeem reset: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidResetToken
	}
	sess, err := p.issue(ctx, reset.AccountID, true)
	if err != nil {
		return nil, err
	}
	p.publish(ctx, reset.AccountID, EventPasswordRecovery)
	return sess, nil
}

// UpdatePassword sets a new password using a recovery session and revokes
// every session of the account, the recovery session included.
func (p *Provider) UpdatePassword(ctx context.Context, token, newPassword string) error {
	claims, err := p.Validate(ctx, token)
	if err != nil {
		return err
	}
	if !claims.Recovery {
		return ErrRecoveryRequired
	}
	if len(newPassword) < p.sec.MinResetPassword {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, p.sec.MinResetPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), p.sec.BcryptCost)
	if err != nil {
		return fmt.Errorf("auth: hash password: %w", err)
	}
	if err := p.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", claims.AccountID).
		Update("password_hash", string(hash)).Error; err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	p.logger.Info("password updated", zap.Int64("account_id", claims.AccountID))
	return p.RevokeAll(ctx, claims.AccountID)
}

// SetBanned bans or reinstates an account. Banning revokes its sessions.
func (p *Provider) SetBanned(ctx context.Context, accountID int64, banned bool) error {
	var acc model.Account
	err := p.db.WithContext(ctx).Take(&acc, accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.NotFound("account")
	}
	if err != nil {
		return fmt.Errorf("auth: find account: %w", err)
	}
	status := model.AccountActive
	if banned {
		status = model.AccountBanned
	}
	if err := p.db.WithContext(ctx).Model(&acc).Update("status", status).Error; err != nil {
		return fmt.Errorf("auth: update status: %w", err)
	}
	p.logger.Info("account status changed", zap.Int64("account_id", accountID), zap.Bool("banned", banned))
	if banned {
		return p.RevokeAll(ctx, accountID)
	}
	return nil
}

// PurgeExpiredResets deletes recovery links that expired or were used.
func (p *Provider) PurgeExpiredResets(ctx context.Context) (int64, error) {
	res := p.db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", time.Now()).
		Delete(&model.PasswordReset{})
	if res.Error != nil {
		return 0, fmt.Errorf("auth: purge resets: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Events subscribes to the auth events of one account. The returned cancel
// function must be called to release the subscription.
func (p *Provider) Events(ctx context.Context, accountID int64) (<-chan Event, func(), error) {
	msgs, cancel, err := p.pubsub.Subscribe(ctx, Channel(accountID))
	if err != nil {
		return nil, nil, fmt.Errorf("auth: subscribe: %w", err)
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				p.logger.Warn("dropping malformed auth event", zap.Error(err))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

func (p *Provider) publish(ctx context.Context, accountID int64, typ string) {
	if p.pubsub == nil {
		return
	}
	payload, _ := json.Marshal(Event{Type: typ, AccountID: accountID, At: time.Now()})
	if err := p.pubsub.Publish(ctx, Channel(accountID), string(payload)); err != nil {
		p.logger.Warn("publish auth event failed",
			zap.Int64("account_id", accountID),
			zap.String("type", typ),
			zap.Error(err))
	}
}
