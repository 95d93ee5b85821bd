package remote

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kollectcare/trialsync/internal/common"
)

type credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register creates a clinician account.
func (s *HTTPStore) Register(ctx context.Context, login, password string) error {
	return s.do(ctx, http.MethodPost, "/api/v1/register", credentials{Login: login, Password: password}, nil)
}

// Login exchanges credentials for an access token. The token is retained
// for subsequent requests and also returned so the watch subscriber can
// carry it.
func (s *HTTPStore) Login(ctx context.Context, login, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/v1/login", credentials{Login: login, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: server returned no token", common.ErrSync)
	}
	s.token = out.Token
	return out.Token, nil
}

// Ping probes server reachability. Used by the connectivity watcher; no
// authentication required.
func (s *HTTPStore) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrSync, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrSync, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s", common.ErrSync, resp.Status)
	}
	return nil
}
