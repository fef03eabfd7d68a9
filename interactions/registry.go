// Package interactions tracks user-to-user interaction requests (connection
// requests, invitations, and similar) and their accept/decline lifecycle.
// Each interaction produces a notification for the recipient through the
// processing pipeline.
package interactions

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/pkg/utils/idgen"
)

// Notifier delivers notifications produced by interaction events
type Notifier interface {
	ProcessNotification(ctx context.Context, notification *core.Notification) (bool, error)
}

// Registry owns interaction records and their state transitions
type Registry struct {
	store       Store
	notifier    Notifier
	idGenerator idgen.Generator
	logger      logger.Interface
}

// Options for registry construction
type Options struct {
	Store       Store
	Notifier    Notifier
	IDGenerator idgen.Generator
	Logger      logger.Interface
}

// New creates an interaction registry
func New(opts Options) (*Registry, error) {
	if opts.Store == nil || opts.Notifier == nil {
		return nil, errors.ErrMissingWiring
	}
	r := &Registry{
		store:       opts.Store,
		notifier:    opts.Notifier,
		idGenerator: opts.IDGenerator,
		logger:      opts.Logger,
	}
	if r.idGenerator == nil {
		r.idGenerator = idgen.NewUUIDGenerator()
	}
	if r.logger == nil {
		r.logger = logger.Default
	}
	return r, nil
}

// Send validates and records a new pending interaction, then notifies the
// recipient through the pipeline. Returns the interaction ID.
func (r *Registry) Send(ctx context.Context, interaction *core.Interaction) (string, error) {
	if interaction == nil {
		return "", errors.ErrInvalidInteraction
	}

	interaction.ID = r.idGenerator.GenerateWithPrefix("int")
	interaction.Status = core.InteractionPending
	interaction.CreatedAt = time.Now()
	interaction.RespondedAt = nil

	if err := interaction.Validate(); err != nil {
		return "", err
	}
	if err := r.store.Save(ctx, interaction); err != nil {
		return "", errors.Wrap(err, errors.CodeStorageError, errors.CategoryStorage, "persisting interaction failed")
	}

	notification := r.requestNotification(interaction)
	if _, err := r.notifier.ProcessNotification(ctx, notification); err != nil {
		// The interaction stands even when its notification cannot be
		// delivered; the recipient can still discover it by listing.
		r.logger.Error(ctx, "interaction notification failed",
			"interaction_id", interaction.ID, "error", err)
	}

	r.logger.Debug(ctx, "interaction sent",
		"interaction_id", interaction.ID, "type", interaction.Type,
		"from", interaction.FromUser, "to", interaction.ToUser)
	return interaction.ID, nil
}

// Respond records the recipient's decision on a pending interaction and
// notifies the original sender. Only the recipient may respond, and only
// once: pending transitions to accepted or declined and never back.
func (r *Registry) Respond(ctx context.Context, interactionID, userID string, accept bool) error {
	interaction, err := r.store.Get(ctx, interactionID)
	if err != nil {
		return err
	}
	if interaction.ToUser != userID {
		return errors.ErrNotRecipient
	}
	if !interaction.IsPending() {
		return errors.ErrAlreadyResponded
	}

	if accept {
		interaction.Status = core.InteractionAccepted
	} else {
		interaction.Status = core.InteractionDeclined
	}
	now := time.Now()
	interaction.RespondedAt = &now

	if err := r.store.Save(ctx, interaction); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, errors.CategoryStorage, "persisting interaction response failed")
	}

	notification := r.responseNotification(interaction)
	if _, err := r.notifier.ProcessNotification(ctx, notification); err != nil {
		r.logger.Error(ctx, "interaction response notification failed",
			"interaction_id", interaction.ID, "error", err)
	}

	r.logger.Debug(ctx, "interaction responded",
		"interaction_id", interaction.ID, "status", interaction.Status)
	return nil
}

// Get returns an interaction by ID
func (r *Registry) Get(ctx context.Context, id string) (*core.Interaction, error) {
	return r.store.Get(ctx, id)
}

// ListForUser returns the interactions addressed to the user, newest first
func (r *Registry) ListForUser(ctx context.Context, userID string) ([]*core.Interaction, error) {
	return r.store.ListForUser(ctx, userID)
}

// ListPendingForUser returns only the user's unanswered interactions
func (r *Registry) ListPendingForUser(ctx context.Context, userID string) ([]*core.Interaction, error) {
	list, err := r.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending := list[:0]
	for _, interaction := range list {
		if interaction.IsPending() {
			pending = append(pending, interaction)
		}
	}
	return pending, nil
}

func (r *Registry) requestNotification(interaction *core.Interaction) *core.Notification {
	title := requestTitle(interaction.Type)
	message := interaction.Message
	if message == "" {
		message = fmt.Sprintf("%s sent you a %s", interaction.FromUser, humanType(interaction.Type))
	}

	n := core.NewNotification(core.TypeInteraction, title, message).
		WithSource("interactions").
		WithPriority(interaction.Priority).
		WithPayload(core.NewInteractionPayload(core.InteractionPayload{
			InteractionID: interaction.ID,
			FromUser:      interaction.FromUser,
			ToUser:        interaction.ToUser,
			Intent:        string(interaction.Type),
		}))
	n.Dismissible = false
	n.Actions = []core.Action{
		{ID: "accept", Label: "Accept", Kind: core.ActionKindButton, Handler: "interaction_accept"},
		{ID: "decline", Label: "Decline", Kind: core.ActionKindButton, Handler: "interaction_decline"},
	}
	return n
}

func (r *Registry) responseNotification(interaction *core.Interaction) *core.Notification {
	verb := "accepted"
	if interaction.Status == core.InteractionDeclined {
		verb = "declined"
	}
	title := fmt.Sprintf("%s %s", humanType(interaction.Type), verb)
	message := fmt.Sprintf("%s %s your %s", interaction.ToUser, verb, humanType(interaction.Type))

	return core.NewNotification(core.TypeInteraction, title, message).
		WithSource("interactions").
		WithPriority(core.PriorityMedium).
		WithPayload(core.NewInteractionPayload(core.InteractionPayload{
			InteractionID: interaction.ID,
			FromUser:      interaction.ToUser,
			ToUser:        interaction.FromUser,
			Intent:        string(interaction.Type),
		}))
}

func requestTitle(t core.InteractionType) string {
	switch t {
	case core.InteractionConnectionRequest:
		return "New connection request"
	case core.InteractionCollaborationInvitation:
		return "Collaboration invitation"
	case core.InteractionChatInvitation:
		return "Chat invitation"
	case core.InteractionMeetingRequest:
		return "Meeting request"
	case core.InteractionFileShareRequest:
		return "File share request"
	case core.InteractionTeamInvitation:
		return "Team invitation"
	case core.InteractionProjectInvitation:
		return "Project invitation"
	case core.InteractionCommentReply:
		return "New reply to your comment"
	default:
		return "New interaction request"
	}
}

func humanType(t core.InteractionType) string {
	switch t {
	case core.InteractionConnectionRequest:
		return "connection request"
	case core.InteractionCollaborationInvitation:
		return "collaboration invitation"
	case core.InteractionChatInvitation:
		return "chat invitation"
	case core.InteractionMeetingRequest:
		return "meeting request"
	case core.InteractionFileShareRequest:
		return "file share request"
	case core.InteractionTeamInvitation:
		return "team invitation"
	case core.InteractionProjectInvitation:
		return "project invitation"
	case core.InteractionCommentReply:
		return "comment reply"
	default:
		return "interaction request"
	}
}

func sortNewestFirst(list []*core.Interaction) {
	slices.SortFunc(list, func(a, b *core.Interaction) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
