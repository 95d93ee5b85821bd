package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/common"
)

// HTTPStore talks to the document store's HTTP/JSON API. Transient failures
// (network errors, 5xx) are retried a couple of times in-process; durable
// retrying with backoff belongs to the sync queue, not here.
type HTTPStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPStore returns a store client for the given endpoint. The token is
// sent as a bearer credential on every request.
func NewHTTPStore(baseURL, token string, timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPStore{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// SetToken replaces the bearer token after a re-login.
func (s *HTTPStore) SetToken(token string) { s.token = token }

// Read returns the current remote document for a patient.
func (s *HTTPStore) Read(ctx context.Context, patientID string) (models.Document, error) {
	var doc models.Document
	err := s.do(ctx, http.MethodGet, "/api/v1/patients/"+patientID, nil, &doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Update applies a partial write to the remote document.
func (s *HTTPStore) Update(ctx context.Context, patientID string, fields models.Document) error {
	return s.do(ctx, http.MethodPatch, "/api/v1/patients/"+patientID, fields, nil)
}

// Create inserts a new document and returns the server-assigned id.
func (s *HTTPStore) Create(ctx context.Context, collection string, doc models.Document) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/v1/"+collection, doc, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: server returned no document id", common.ErrSync)
	}
	return out.ID, nil
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	backoff := retry.WithMaxRetries(2, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrSync, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.token != "" {
			req.Header.Set(common.AuthHeaderName, "Bearer "+s.token)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			// Network-level failure: worth an in-process retry.
			return retry.RetryableError(fmt.Errorf("%w: %v", common.ErrSync, err))
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return common.ErrorNotFound
		case resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("%w: %v", common.ErrSync, common.ErrorUnauthorized)
		case resp.StatusCode >= 500:
			b, _ := io.ReadAll(resp.Body)
			return retry.RetryableError(fmt.Errorf("%w: %s: %s", common.ErrSync, resp.Status, string(b)))
		case resp.StatusCode >= 400:
			b, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("%w: %s: %s", common.ErrSync, resp.Status, string(b))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("%w: failed to decode response: %v", common.ErrSync, err)
			}
		}
		return nil
	})
}
