package pan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	tokenEndpoint = "/api/v1/access_token"

	// safetyMargin is subtracted from the credential's expiry when judging
	// usability, so a token is never presented moments before it dies.
	safetyMargin = 60 * time.Second

	// defaultExpiresIn is assumed when the token response carries neither
	// an absolute expiry nor a relative one.
	defaultExpiresIn = 3600 * time.Second
)

// CredentialStore persists the single cached credential record. A missing,
// corrupt, or partially populated record loads as absent, never as an
// error — callers cannot distinguish "never cached" from "unreadable".
type CredentialStore interface {
	Load() (*Credential, error)
	Save(*Credential) error
	Clear() error
}

// Manager owns token acquisition, expiry tracking, and refresh. Access is
// serialized so concurrent callers never trigger duplicate refreshes; a
// refresh in progress is awaited by the other callers via the mutex.
//
// Multiple processes sharing the same store can still race on refresh;
// that is tolerated because refresh is idempotent (last write wins).
type Manager struct {
	client       *Client
	store        CredentialStore
	clientID     string
	clientSecret string
	logger       *slog.Logger

	mu   sync.Mutex
	cred *Credential

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewManager creates a token manager. client is used only for the
// token-issuing call, which bypasses the auth-attach step.
func NewManager(client *Client, store CredentialStore, clientID, clientSecret string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		client:       client,
		store:        store,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid access token, refreshing from the API only when
// the cached credential is missing or within the safety margin of expiry.
// A business-level rejection (bad credentials) surfaces wrapping ErrAuth
// and is not retried here; a network failure surfaces wrapping ErrNetwork
// and is left to the transport's retry loop on the outer call.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cred.Valid(m.now(), safetyMargin) {
		return m.cred.AccessToken, nil
	}

	if cred := m.loadStored(); cred.Valid(m.now(), safetyMargin) {
		m.cred = cred

		m.logger.Debug("using cached credential",
			slog.Time("expires_at", time.Unix(cred.ExpiresAt, 0)),
		)

		return cred.AccessToken, nil
	}

	cred, err := m.refresh(ctx)
	if err != nil {
		return "", err
	}

	m.cred = cred

	return cred.AccessToken, nil
}

// Invalidate drops the credential from memory and disk, forcing the next
// Token call to acquire a fresh one.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cred = nil

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clearing cached credential failed",
			slog.String("error", err.Error()),
		)
	}
}

// loadStored reads the persisted credential, treating any failure as absent.
func (m *Manager) loadStored() *Credential {
	cred, err := m.store.Load()
	if err != nil {
		m.logger.Warn("loading cached credential failed",
			slog.String("error", err.Error()),
		)

		return nil
	}

	return cred
}

// tokenRequest is the acquisition payload. The client secret is never
// logged in full.
type tokenRequest struct {
	ClientID     string `json:"clientID"`
	ClientSecret string `json:"clientSecret"`
}

// refresh issues one token-acquisition request (no transport retry — the
// outer call's retry loop re-enters Token on network failure) and persists
// the new credential before returning it.
func (m *Manager) refresh(ctx context.Context) (*Credential, error) {
	m.logger.Info("acquiring access token",
		slog.String("client_id", m.clientID),
	)

	body, err := json.Marshal(tokenRequest{ClientID: m.clientID, ClientSecret: m.clientSecret})
	if err != nil {
		return nil, fmt.Errorf("pan: encoding token request: %w", err)
	}

	data, err := m.client.doOnce(ctx, http.MethodPost, m.client.baseURL+tokenEndpoint, body, callOptions{noAuth: true})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			// Credential rejection is fatal; keep the vendor code and
			// message for operator correlation.
			apiErr.Err = ErrAuth
			return nil, apiErr
		}

		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %v", ErrAuth, err)
	}

	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing accessToken", ErrAuth)
	}

	cred := &Credential{
		AccessToken: tr.AccessToken,
		ExpiresAt:   m.parseExpiry(&tr),
	}

	if saveErr := m.store.Save(cred); saveErr != nil {
		// Last write wins across processes; a failed save only costs an
		// extra refresh later.
		m.logger.Warn("persisting credential failed",
			slog.String("error", saveErr.Error()),
		)
	}

	m.logger.Info("access token acquired",
		slog.Time("expires_at", time.Unix(cred.ExpiresAt, 0)),
	)

	return cred, nil
}

// parseExpiry computes the credential expiry, preferring the absolute
// expiredAt timestamp, then now+expiresIn, then now+1h.
func (m *Manager) parseExpiry(tr *tokenResponse) int64 {
	if tr.ExpiredAt != "" {
		if t, err := time.Parse(time.RFC3339, tr.ExpiredAt); err == nil {
			return t.Unix()
		}

		m.logger.Warn("unparseable expiredAt in token response, falling back to expiresIn",
			slog.String("raw", tr.ExpiredAt),
		)
	}

	if tr.ExpiresIn > 0 {
		return m.now().Add(time.Duration(tr.ExpiresIn) * time.Second).Unix()
	}

	return m.now().Add(defaultExpiresIn).Unix()
}
