package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kollectcare/trialsync/internal/client/models"
	"github.com/kollectcare/trialsync/internal/common"
	"github.com/kollectcare/trialsync/internal/logging"
)

// WSSubscriber implements Subscriber over a WebSocket stream per record.
// Each Subscribe call opens one connection; the server pushes the full
// document after every accepted write.
type WSSubscriber struct {
	baseURL string
	token   string
	logger  logging.Logger
}

// NewWSSubscriber builds a subscriber for the given HTTP endpoint. The
// http(s) scheme is rewritten to ws(s) on dial.
func NewWSSubscriber(baseURL, token string, logger logging.Logger) *WSSubscriber {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &WSSubscriber{baseURL: baseURL, token: token, logger: logger}
}

// SetToken replaces the bearer token after a re-login. Affects future
// Subscribe calls only, not streams already open.
func (s *WSSubscriber) SetToken(token string) { s.token = token }

// Subscribe opens the change stream for one patient and invokes onChange
// for every pushed snapshot until unsubscribed. The returned Unsubscribe is
// synchronous and idempotent: after it returns the callback will not fire
// again.
func (s *WSSubscriber) Subscribe(ctx context.Context, patientID string, onChange func(models.Document)) (Unsubscribe, error) {
	url := wsURL(s.baseURL) + "/api/v1/patients/" + patientID + "/watch"

	header := http.Header{}
	if s.token != "" {
		header.Set(common.AuthHeaderName, "Bearer "+s.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: watch dial failed: %v", common.ErrSync, err)
	}

	done := make(chan struct{})
	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			_ = conn.Close()
			<-done
		})
	}

	go func() {
		defer close(done)
		for {
			var doc models.Document
			if err := conn.ReadJSON(&doc); err != nil {
				if !isClosedError(err) {
					s.logger.Warn(ctx, "watch stream closed", "patient_id", patientID, "error", err)
				}
				return
			}
			onChange(doc)
		}
	}()

	return unsubscribe, nil
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func isClosedError(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
