package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_StreamsUpdates(t *testing.T) {
	ts := setupServer(t)
	token := registerAndLogin(t, ts, "alice")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/patients", token,
		map[string]any{"name": "A", "_version": 1})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/patients/" + created.ID + "/watch"
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()

	// The current state arrives first.
	var snapshot map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "A", snapshot["name"])

	// An accepted write is pushed to the open stream.
	resp = doJSON(t, http.MethodPatch, ts.URL+"/api/v1/patients/"+created.ID, token,
		map[string]any{"name": "B", "_version": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, "B", snapshot["name"])
	assert.Equal(t, float64(2), snapshot["_version"])
}

func TestWatch_RejectsMissingToken(t *testing.T) {
	ts := setupServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/patients/any/watch"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
