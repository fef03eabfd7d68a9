// Package push delivers notifications to external push services (Telegram,
// Discord, email gateways and the rest of the shoutrrr catalogue). Delivery
// is best-effort: a push failure never blocks the pipeline.
package push

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
)

const handlerID = "push"

// Config for the push handler
type Config struct {
	// URLs are shoutrrr service URLs (telegram://..., discord://..., ...)
	URLs []string `json:"urls" yaml:"urls"`
	// MinPriority drops notifications below this priority (default medium)
	MinPriority core.Priority `json:"min_priority" yaml:"min_priority"`
	// Types restricts delivery to these notification types (empty = all)
	Types []core.Type `json:"types" yaml:"types"`
	// Timeout bounds each delivery attempt
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// Handler pushes notifications through a shoutrrr service router
type Handler struct {
	config Config
	sender *router.ServiceRouter
	types  map[core.Type]bool
	logger logger.Interface
}

// New builds the sender from the configured URLs
func New(config Config, log logger.Interface) (*Handler, error) {
	if len(config.URLs) == 0 {
		return nil, errors.ErrMissingConfig
	}
	if config.MinPriority == "" {
		config.MinPriority = core.PriorityMedium
	}
	if log == nil {
		log = logger.Default
	}

	sender, err := shoutrrr.CreateSender(config.URLs...)
	if err != nil {
		return nil, fmt.Errorf("building push sender: %w", err)
	}
	if config.Timeout > 0 {
		sender.Timeout = config.Timeout
	}
	sender.SetLogger(stdlog.New(io.Discard, "", 0))

	types := make(map[core.Type]bool, len(config.Types))
	for _, t := range config.Types {
		types[t] = true
	}

	return &Handler{
		config: config,
		sender: sender,
		types:  types,
		logger: log,
	}, nil
}

// ID returns the handler identifier
func (h *Handler) ID() string { return handlerID }

// CanHandle accepts notifications at or above the configured priority and
// matching the configured types
func (h *Handler) CanHandle(n *core.Notification) bool {
	if len(h.types) > 0 && !h.types[n.Type] {
		return false
	}
	return priorityRank(n.Priority) >= priorityRank(h.config.MinPriority)
}

// Handle pushes the notification to every configured service
func (h *Handler) Handle(ctx context.Context, n *core.Notification) error {
	body := n.Message
	if body == "" {
		body = n.Title
	}
	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}

	errs := h.sender.Send(body, &params)
	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		h.logger.Warn(ctx, "push delivery partially failed",
			"notification_id", n.ID, "failures", len(failed), "services", len(errs))
		return errors.Wrap(errors.Join(failed...), errors.CodeNetworkError, errors.CategoryNetwork,
			"push delivery failed")
	}
	return nil
}

var priorityOrder = []core.Priority{core.PriorityLow, core.PriorityMedium, core.PriorityHigh, core.PriorityUrgent}

func priorityRank(p core.Priority) int {
	return slices.Index(priorityOrder, p)
}
