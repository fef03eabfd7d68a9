package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
)

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{}, logger.Discard)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestHandlePostsSignedJSON(t *testing.T) {
	var gotBody []byte
	var gotSignature, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Alerthub-Signature")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	h, err := New(Config{URL: server.URL, Secret: "hunter2"}, logger.Discard)
	require.NoError(t, err)

	n := core.NewNotification(core.TypeError, "Disk failing", "smartd reported errors").WithID("n1")
	require.NoError(t, h.Handle(context.Background(), n))

	assert.Equal(t, "application/json", gotContentType)

	var decoded core.Notification
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "n1", decoded.ID)
	assert.Equal(t, "Disk failing", decoded.Title)

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSignature)
}

func TestHandleUnsignedWithoutSecret(t *testing.T) {
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Alerthub-Signature")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h, err := New(Config{URL: server.URL}, logger.Discard)
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), core.NewNotification(core.TypeInfo, "t", "m")))
	assert.Empty(t, gotSignature)
}

func TestHandleNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h, err := New(Config{URL: server.URL}, logger.Discard)
	require.NoError(t, err)

	err = h.Handle(context.Background(), core.NewNotification(core.TypeInfo, "t", "m"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCanHandleTypeFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	unrestricted, err := New(Config{URL: server.URL}, logger.Discard)
	require.NoError(t, err)
	assert.True(t, unrestricted.CanHandle(core.NewNotification(core.TypeInfo, "t", "m")))

	errorsOnly, err := New(Config{URL: server.URL, Types: []core.Type{core.TypeError}}, logger.Discard)
	require.NoError(t, err)
	assert.False(t, errorsOnly.CanHandle(core.NewNotification(core.TypeInfo, "t", "m")))
	assert.True(t, errorsOnly.CanHandle(core.NewNotification(core.TypeError, "t", "m")))
}
