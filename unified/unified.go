// Package unified is the single entry point callers use to send anything:
// directed interaction requests and social notifications share one Send
// surface keyed by intent. Every intent is explicitly routed; an intent
// missing from the table is an error, never silently coerced into another
// kind of message.
package unified

import (
	"context"
	"fmt"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
	"github.com/kart-io/alerthub/hub"
	"github.com/kart-io/alerthub/interactions"
	"github.com/kart-io/alerthub/logger"
)

// Intent names what the caller wants to happen
type Intent string

const (
	// Directed intents produce a stateful interaction awaiting a response
	IntentConnectionRequest       Intent = "connection_request"
	IntentCollaborationInvitation Intent = "collaboration_invitation"
	IntentChatInvitation          Intent = "chat_invitation"
	IntentMeetingRequest          Intent = "meeting_request"
	IntentFileShareRequest        Intent = "file_share_request"
	IntentTeamInvitation          Intent = "team_invitation"
	IntentProjectInvitation       Intent = "project_invitation"
	IntentCommentReply            Intent = "comment_reply"

	// Social intents produce a plain notification, no response expected
	IntentPostLike    Intent = "post_like"
	IntentPostComment Intent = "post_comment"
	IntentPostShare   Intent = "post_share"
	IntentPostMention Intent = "post_mention"
)

// interactionIntents maps each directed intent to its interaction type.
// Social intents are deliberately absent: they route through the
// notification pipeline instead.
var interactionIntents = map[Intent]core.InteractionType{
	IntentConnectionRequest:       core.InteractionConnectionRequest,
	IntentCollaborationInvitation: core.InteractionCollaborationInvitation,
	IntentChatInvitation:          core.InteractionChatInvitation,
	IntentMeetingRequest:          core.InteractionMeetingRequest,
	IntentFileShareRequest:        core.InteractionFileShareRequest,
	IntentTeamInvitation:          core.InteractionTeamInvitation,
	IntentProjectInvitation:       core.InteractionProjectInvitation,
	IntentCommentReply:            core.InteractionCommentReply,
}

var socialIntents = map[Intent]struct {
	title    string
	template string
	priority core.Priority
}{
	IntentPostLike:    {"New like", "%s liked your post", core.PriorityLow},
	IntentPostComment: {"New comment", "%s commented on your post", core.PriorityMedium},
	IntentPostShare:   {"Post shared", "%s shared your post", core.PriorityLow},
	IntentPostMention: {"You were mentioned", "%s mentioned you in a post", core.PriorityMedium},
}

// Request is a unified send request
type Request struct {
	Intent   Intent
	FromUser string
	ToUser   string
	Message  string
	Priority core.Priority

	// PostID and CommentID carry social context; ignored for directed intents
	PostID    string
	CommentID string
}

// Result reports the outcome of a unified send. Err is always reflected in
// Success so callers can branch on one field.
type Result struct {
	Success        bool
	Intent         Intent
	NotificationID string
	InteractionID  string
	Err            error
}

// Service is the unified send facade
type Service struct {
	hub          *hub.Hub
	interactions *interactions.Registry
	logger       logger.Interface
}

// Options for facade construction
type Options struct {
	Hub          *hub.Hub
	Interactions *interactions.Registry
	Logger       logger.Interface
}

// New creates the unified facade
func New(opts Options) (*Service, error) {
	if opts.Hub == nil || opts.Interactions == nil {
		return nil, errors.ErrMissingWiring
	}
	s := &Service{
		hub:          opts.Hub,
		interactions: opts.Interactions,
		logger:       opts.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default
	}
	return s, nil
}

// Send routes the request by intent: directed intents become interactions,
// social intents become notifications. Unknown intents fail.
func (s *Service) Send(ctx context.Context, req Request) Result {
	if interactionType, ok := interactionIntents[req.Intent]; ok {
		return s.sendInteraction(ctx, req, interactionType)
	}
	if _, ok := socialIntents[req.Intent]; ok {
		return s.sendSocial(ctx, req)
	}

	err := errors.Wrapf(errors.ErrUnknownIntent, errors.CodeUnknownIntent, errors.CategoryValidation,
		"unroutable intent %q", req.Intent)
	s.logger.Warn(ctx, "send with unknown intent rejected", "intent", req.Intent)
	return Result{Intent: req.Intent, Err: err}
}

func (s *Service) sendInteraction(ctx context.Context, req Request, interactionType core.InteractionType) Result {
	interaction := core.NewInteraction(interactionType, req.FromUser, req.ToUser)
	interaction.Message = req.Message
	if req.Priority != "" {
		interaction.Priority = req.Priority
	}

	id, err := s.interactions.Send(ctx, interaction)
	if err != nil {
		return Result{Intent: req.Intent, Err: err}
	}
	return Result{Success: true, Intent: req.Intent, InteractionID: id}
}

func (s *Service) sendSocial(ctx context.Context, req Request) Result {
	entry := socialIntents[req.Intent]

	message := req.Message
	if message == "" {
		message = fmt.Sprintf(entry.template, req.FromUser)
	}
	priority := req.Priority
	if priority == "" {
		priority = entry.priority
	}

	notification := core.NewNotification(core.TypeSocial, entry.title, message).
		WithSource("social").
		WithPriority(priority).
		WithPayload(core.NewSocialPayload(core.SocialPayload{
			PostID:    req.PostID,
			CommentID: req.CommentID,
			ActorID:   req.FromUser,
			ActorName: req.FromUser,
		}))

	persisted, err := s.hub.ProcessNotification(ctx, notification)
	if err != nil {
		return Result{Intent: req.Intent, Err: err}
	}
	if !persisted {
		return Result{Intent: req.Intent, Err: errors.ErrStorageError}
	}
	return Result{Success: true, Intent: req.Intent, NotificationID: notification.ID}
}

// Respond records the recipient's decision on the interaction behind a
// notification. The notification must carry an interaction payload.
func (s *Service) Respond(ctx context.Context, notification *core.Notification, userID string, accept bool) Result {
	if notification == nil || notification.Payload == nil || notification.Payload.Interaction == nil {
		return Result{Err: errors.ErrInvalidInteraction}
	}

	interactionID := notification.Payload.Interaction.InteractionID
	if err := s.interactions.Respond(ctx, interactionID, userID, accept); err != nil {
		return Result{InteractionID: interactionID, Err: err}
	}
	return Result{Success: true, InteractionID: interactionID}
}

// RespondToInteraction records a decision directly by interaction ID
func (s *Service) RespondToInteraction(ctx context.Context, interactionID, userID string, accept bool) Result {
	if err := s.interactions.Respond(ctx, interactionID, userID, accept); err != nil {
		return Result{InteractionID: interactionID, Err: err}
	}
	return Result{Success: true, InteractionID: interactionID}
}

// SendConnectionRequest sends a connection request from one user to another
func (s *Service) SendConnectionRequest(ctx context.Context, fromUser, toUser, message string) Result {
	return s.Send(ctx, Request{Intent: IntentConnectionRequest, FromUser: fromUser, ToUser: toUser, Message: message})
}

// SendCollaborationInvitation invites a user to collaborate
func (s *Service) SendCollaborationInvitation(ctx context.Context, fromUser, toUser, message string) Result {
	return s.Send(ctx, Request{Intent: IntentCollaborationInvitation, FromUser: fromUser, ToUser: toUser, Message: message})
}

// SendChatInvitation invites a user to a chat
func (s *Service) SendChatInvitation(ctx context.Context, fromUser, toUser, message string) Result {
	return s.Send(ctx, Request{Intent: IntentChatInvitation, FromUser: fromUser, ToUser: toUser, Message: message})
}

// SendMeetingRequest requests a meeting with a user
func (s *Service) SendMeetingRequest(ctx context.Context, fromUser, toUser, message string) Result {
	return s.Send(ctx, Request{Intent: IntentMeetingRequest, FromUser: fromUser, ToUser: toUser, Message: message})
}

// SendTeamInvitation invites a user to a team
func (s *Service) SendTeamInvitation(ctx context.Context, fromUser, toUser, message string) Result {
	return s.Send(ctx, Request{Intent: IntentTeamInvitation, FromUser: fromUser, ToUser: toUser, Message: message})
}

// SendPostLike notifies that an actor liked a post
func (s *Service) SendPostLike(ctx context.Context, actor, postID string) Result {
	return s.Send(ctx, Request{Intent: IntentPostLike, FromUser: actor, PostID: postID})
}

// SendPostComment notifies that an actor commented on a post
func (s *Service) SendPostComment(ctx context.Context, actor, postID, commentID string) Result {
	return s.Send(ctx, Request{Intent: IntentPostComment, FromUser: actor, PostID: postID, CommentID: commentID})
}

// SendPostShare notifies that an actor shared a post
func (s *Service) SendPostShare(ctx context.Context, actor, postID string) Result {
	return s.Send(ctx, Request{Intent: IntentPostShare, FromUser: actor, PostID: postID})
}

// SendPostMention notifies that an actor mentioned the user in a post
func (s *Service) SendPostMention(ctx context.Context, actor, postID string) Result {
	return s.Send(ctx, Request{Intent: IntentPostMention, FromUser: actor, PostID: postID})
}
