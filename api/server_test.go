package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/hub"
	"github.com/kart-io/alerthub/interactions"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/queue"
	"github.com/kart-io/alerthub/registry"
	"github.com/kart-io/alerthub/service"
	"github.com/kart-io/alerthub/store/memory"
	"github.com/kart-io/alerthub/unified"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.Service) {
	t.Helper()
	ctx := context.Background()

	svc := service.New(service.Options{Store: memory.New(100), Logger: logger.Discard})
	require.NoError(t, svc.Initialize(ctx, nil))

	h := hub.New(hub.Options{Logger: logger.Discard})
	h.SetService(svc)
	h.SetRegistry(registry.New(logger.Discard))
	require.NoError(t, h.Initialize(ctx))
	require.NoError(t, h.Start(ctx))

	interactionRegistry, err := interactions.New(interactions.Options{
		Store:    interactions.NewMemoryStore(),
		Notifier: h,
		Logger:   logger.Discard,
	})
	require.NoError(t, err)

	facade, err := unified.New(unified.Options{Hub: h, Interactions: interactionRegistry, Logger: logger.Discard})
	require.NoError(t, err)

	s, err := New(Options{
		Service:      svc,
		Hub:          h,
		Facade:       facade,
		Interactions: interactionRegistry,
		Queue:        queue.NewMemoryQueue(16),
		Logger:       logger.Discard,
	})
	require.NoError(t, err)

	server := httptest.NewServer(s.routes())
	t.Cleanup(server.Close)
	return server, svc
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestNewRequiresWiring(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, errors.ErrMissingWiring)
}

func TestSendDirectedIntent(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/send", map[string]interface{}{
		"Intent":   "connection_request",
		"FromUser": "alice",
		"ToUser":   "bob",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.True(t, out.Success)
}

func TestSendUnknownIntent(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/send", map[string]interface{}{
		"Intent":   "telepathy",
		"FromUser": "alice",
		"ToUser":   "bob",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessAndListNotifications(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/notifications", map[string]interface{}{
		"type":    "info",
		"title":   "Deploy finished",
		"message": "v1.2.3 rolled out",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeResponse(t, resp)
	require.True(t, created.Success)

	listResp, err := http.Get(server.URL + "/api/v1/notifications?unread=true")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)

	out := decodeResponse(t, listResp)
	items, ok := out.Data.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 1)
}

func TestMarkReadLifecycle(t *testing.T) {
	server, svc := newTestServer(t)
	ctx := context.Background()

	id, err := svc.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	require.NoError(t, err)

	resp := postJSON(t, server.URL+"/api/v1/notifications/"+id+"/read", struct{}{})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, server.URL+"/api/v1/notifications/missing/read", struct{}{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteNotification(t *testing.T) {
	server, svc := newTestServer(t)
	ctx := context.Background()

	id, err := svc.CreateNotification(ctx, core.NewNotification(core.TypeInfo, "t", "m"))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/notifications/"+id, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	count, err := svc.GetNotificationCount(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestInteractionRespondFlow(t *testing.T) {
	server, _ := newTestServer(t)

	sendResp := postJSON(t, server.URL+"/api/v1/send", map[string]interface{}{
		"Intent":   "team_invitation",
		"FromUser": "alice",
		"ToUser":   "bob",
	})
	require.Equal(t, http.StatusCreated, sendResp.StatusCode)
	sent := decodeResponse(t, sendResp)
	data, ok := sent.Data.(map[string]interface{})
	require.True(t, ok)
	interactionID, _ := data["InteractionID"].(string)
	require.NotEmpty(t, interactionID)

	listResp, err := http.Get(server.URL + "/api/v1/interactions/bob?pending=true")
	require.NoError(t, err)
	out := decodeResponse(t, listResp)
	items, ok := out.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, items, 1)

	// only the recipient may respond
	forbidden := postJSON(t, server.URL+"/api/v1/interactions/"+interactionID+"/respond",
		respondRequest{UserID: "alice", Accept: true})
	defer forbidden.Body.Close()
	assert.Equal(t, http.StatusForbidden, forbidden.StatusCode)

	accepted := postJSON(t, server.URL+"/api/v1/interactions/"+interactionID+"/respond",
		respondRequest{UserID: "bob", Accept: true})
	defer accepted.Body.Close()
	require.Equal(t, http.StatusOK, accepted.StatusCode)

	// second response conflicts
	again := postJSON(t, server.URL+"/api/v1/interactions/"+interactionID+"/respond",
		respondRequest{UserID: "bob", Accept: false})
	defer again.Body.Close()
	assert.Equal(t, http.StatusConflict, again.StatusCode)
}

func TestEnqueueAccepted(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/v1/notifications/enqueue", map[string]interface{}{
		"type":  "info",
		"title": "queued",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	out := decodeResponse(t, resp)
	assert.True(t, out.Success)
}

func TestHealth(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeResponse(t, resp)
	data, ok := out.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "running", data["hub"])
}

func TestInvalidJSONRejected(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/v1/notifications", "application/json",
		bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListWithInvalidLimit(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/v1/notifications?limit=abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
