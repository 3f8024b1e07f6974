package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/karaokectl/internal/models"
	"github.com/desertthunder/karaokectl/internal/shared"
	"golang.org/x/oauth2"
)

// AuthGate owns the session and authorizes every registry request.
//
// It implements [oauth2.TokenSource]; [AuthGate.Client] wires it into an [oauth2.Transport].
type AuthGate struct {
	baseURL   string
	transport http.RoundTripper
	store     SessionStore
	logger    *log.Logger

	mu        sync.RWMutex
	session   *models.Session
	listeners []func()
}

// NewAuthGate creates a gate for the backend at baseURL.
//
// store may be nil, in which case the session only lives in memory. transport defaults to
// [http.DefaultTransport].
func NewAuthGate(baseURL string, store SessionStore, transport http.RoundTripper, logger *log.Logger) *AuthGate {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &AuthGate{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		store:     store,
		logger:    logger,
	}
}

// Token implements [oauth2.TokenSource].
func (g *AuthGate) Token() (*oauth2.Token, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.session == nil {
		return nil, shared.ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: g.session.Token, TokenType: "Bearer"}, nil
}

// Client returns an [http.Client] that sends the session token as a Bearer header and expires
// the session on any 401.
func (g *AuthGate) Client(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: g,
			Base:   &expiryTransport{gate: g, base: g.transport},
		},
	}
}

// Authenticate exchanges an access token for a session via POST /auth.
//
// Rejections wrap [shared.ErrAuthFailed] with the reason (invalid, expired, revoked).
func (g *AuthGate) Authenticate(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: access token is required", shared.ErrValidation)
	}

	body, err := json.Marshal(models.AuthRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to encode auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Transport: g.transport}).Do(req)
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		apiErr := decodeAPIError(resp)
		if resp.StatusCode == http.StatusUnauthorized && !errors.Is(apiErr, shared.ErrAuthFailed) {
			apiErr.Kind = shared.ErrTokenInvalid
		}
		g.logger.Warn("authentication rejected", "status", resp.StatusCode, "code", apiErr.Code)
		return nil, apiErr
	}

	var descriptor models.AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&descriptor); err != nil {
		return nil, fmt.Errorf("%w: failed to decode auth response: %v", shared.ErrServer, err)
	}
	if descriptor.Tier == "" {
		descriptor.Tier = models.TierStandard
	}

	session := &models.Session{
		Token:           token,
		Tier:            descriptor.Tier,
		JobsRemaining:   descriptor.JobsRemaining,
		JobsUsed:        descriptor.JobsUsed,
		AuthenticatedAt: time.Now().UTC(),
	}

	g.mu.Lock()
	g.session = session
	g.mu.Unlock()

	g.persist(session)
	g.logger.Info("authenticated", "tier", session.Tier, "remaining", session.JobsRemaining)

	out := *session
	return &out, nil
}

// Restore re-authenticates silently with the persisted token.
//
// It returns [shared.ErrNotAuthenticated] when nothing is stored. A rejected token is removed from
// the store; a network failure keeps it for the next attempt.
func (g *AuthGate) Restore(ctx context.Context) (*models.Session, error) {
	if g.store == nil {
		return nil, shared.ErrNotAuthenticated
	}

	stored, err := g.store.Load()
	if err != nil {
		return nil, err
	}

	session, err := g.Authenticate(ctx, stored.Token)
	if err != nil {
		if errors.Is(err, shared.ErrAuthFailed) {
			g.logger.Info("stored token rejected, clearing")
			if clearErr := g.store.Clear(); clearErr != nil {
				g.logger.Error("failed to clear stored session", "error", clearErr)
			}
		}
		return nil, err
	}
	return session, nil
}

// Session returns a copy of the active session, or nil.
func (g *AuthGate) Session() *models.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.session == nil {
		return nil
	}
	out := *g.session
	return &out
}

// OnExpire registers fn to run whenever a 401 ends the session.
func (g *AuthGate) OnExpire(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

// Expire clears the session after the backend rejected it and notifies listeners.
func (g *AuthGate) Expire() {
	g.expire("")
}

// expire clears the session if token is empty or still the active token, so a late 401 from
// a previous session cannot end a newer one.
func (g *AuthGate) expire(token string) {
	g.mu.Lock()
	if g.session == nil || (token != "" && g.session.Token != token) {
		g.mu.Unlock()
		return
	}
	g.session = nil
	listeners := append([]func(){}, g.listeners...)
	g.mu.Unlock()

	g.logger.Warn("session expired")
	g.forget()

	for _, fn := range listeners {
		fn()
	}
}

// Logout clears the session from memory and from the store.
func (g *AuthGate) Logout() error {
	g.mu.Lock()
	g.session = nil
	g.mu.Unlock()

	if g.store == nil {
		return nil
	}
	return g.store.Clear()
}

// UpdateUsage refreshes the quota counters of the active session.
func (g *AuthGate) UpdateUsage(remaining, used int) {
	g.mu.Lock()
	if g.session == nil {
		g.mu.Unlock()
		return
	}
	g.session.JobsRemaining = max(remaining, 0)
	g.session.JobsUsed = max(used, 0)
	session := *g.session
	g.mu.Unlock()

	g.persist(&session)
}

// ConsumeJob counts one submitted job against the active session and returns the new
// counters. It is used when the backend does not report them.
func (g *AuthGate) ConsumeJob() (remaining, used int) {
	g.mu.Lock()
	if g.session == nil {
		g.mu.Unlock()
		return 0, 0
	}
	g.session.JobsRemaining = max(g.session.JobsRemaining-1, 0)
	g.session.JobsUsed++
	session := *g.session
	g.mu.Unlock()

	g.persist(&session)
	return session.JobsRemaining, session.JobsUsed
}

func (g *AuthGate) persist(session *models.Session) {
	if g.store == nil {
		return
	}
	if err := g.store.Save(session); err != nil {
		g.logger.Error("failed to persist session", "error", err)
	}
}

func (g *AuthGate) forget() {
	if g.store == nil {
		return
	}
	if err := g.store.Clear(); err != nil {
		g.logger.Error("failed to clear stored session", "error", err)
	}
}

// expiryTransport sits under [oauth2.Transport] and ends the session on 401.
type expiryTransport struct {
	gate *AuthGate
	base http.RoundTripper
}

func (t *expiryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		token := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		t.gate.expire(token)
	}
	return resp, nil
}
