// Package webhook delivers notifications as JSON POST requests to a
// configured endpoint, signing each request with a shared secret header.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
)

const (
	handlerID        = "webhook"
	defaultTimeout   = 10 * time.Second
	signatureHeader  = "X-Alerthub-Signature"
	contentTypeValue = "application/json"
)

// Config for the webhook handler
type Config struct {
	// URL is the endpoint receiving POST requests
	URL string `json:"url" yaml:"url"`
	// Secret signs the request body with HMAC-SHA256 (empty = unsigned)
	Secret string `json:"secret" yaml:"secret"`
	// Timeout bounds each request (default 10s)
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// Types restricts delivery to these notification types (empty = all)
	Types []core.Type `json:"types" yaml:"types"`
}

// Handler posts notifications to a webhook endpoint
type Handler struct {
	config Config
	client *http.Client
	types  map[core.Type]bool
	logger logger.Interface
}

// New creates the webhook handler
func New(config Config, log logger.Interface) (*Handler, error) {
	if config.URL == "" {
		return nil, errors.ErrMissingConfig
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if log == nil {
		log = logger.Default
	}

	types := make(map[core.Type]bool, len(config.Types))
	for _, t := range config.Types {
		types[t] = true
	}

	return &Handler{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		types:  types,
		logger: log,
	}, nil
}

// ID returns the handler identifier
func (h *Handler) ID() string { return handlerID }

// CanHandle accepts notifications matching the configured types
func (h *Handler) CanHandle(n *core.Notification) bool {
	if len(h.types) == 0 {
		return true
	}
	return h.types[n.Type]
}

// Handle posts the notification as JSON
func (h *Handler) Handle(ctx context.Context, n *core.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeValue)
	if h.config.Secret != "" {
		req.Header.Set(signatureHeader, sign(body, h.config.Secret))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.CodeNetworkError, errors.CategoryNetwork, "webhook request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Wrapf(nil, errors.CodeNetworkError, errors.CategoryNetwork,
			"webhook returned status %d", resp.StatusCode)
	}

	h.logger.Debug(ctx, "webhook delivered", "notification_id", n.ID, "status", resp.StatusCode)
	return nil
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
