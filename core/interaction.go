package core

import (
	"fmt"
	"strings"
	"time"
)

// InteractionType is the typed intent of a directed interaction
type InteractionType string

const (
	InteractionConnectionRequest       InteractionType = "connection_request"
	InteractionCollaborationInvitation InteractionType = "collaboration_invitation"
	InteractionChatInvitation          InteractionType = "chat_invitation"
	InteractionMeetingRequest          InteractionType = "meeting_request"
	InteractionFileShareRequest        InteractionType = "file_share_request"
	InteractionTeamInvitation          InteractionType = "team_invitation"
	InteractionProjectInvitation       InteractionType = "project_invitation"
	InteractionCommentReply            InteractionType = "comment_reply"
)

// IsValid reports whether t is a known interaction type
func (t InteractionType) IsValid() bool {
	switch t {
	case InteractionConnectionRequest, InteractionCollaborationInvitation,
		InteractionChatInvitation, InteractionMeetingRequest,
		InteractionFileShareRequest, InteractionTeamInvitation,
		InteractionProjectInvitation, InteractionCommentReply:
		return true
	default:
		return false
	}
}

// InteractionStatus is the recipient-controlled response state.
// Transitions are one-directional: pending may become accepted or declined,
// and neither ever reverts.
type InteractionStatus string

const (
	InteractionPending  InteractionStatus = "pending"
	InteractionAccepted InteractionStatus = "accepted"
	InteractionDeclined InteractionStatus = "declined"
)

// Interaction is a directed, stateful record from one user to another
type Interaction struct {
	ID          string            `json:"id"`
	Type        InteractionType   `json:"type"`
	FromUser    string            `json:"from_user"`
	ToUser      string            `json:"to_user"`
	Message     string            `json:"message,omitempty"`
	Priority    Priority          `json:"priority"`
	Status      InteractionStatus `json:"status"`
	Payload     *Payload          `json:"payload,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	RespondedAt *time.Time        `json:"responded_at,omitempty"`
}

// NewInteraction creates a pending interaction with defaults applied
func NewInteraction(interactionType InteractionType, fromUser, toUser string) *Interaction {
	return &Interaction{
		Type:      interactionType,
		FromUser:  fromUser,
		ToUser:    toUser,
		Priority:  PriorityMedium,
		Status:    InteractionPending,
		CreatedAt: time.Now(),
	}
}

// Validate validates the interaction
func (i *Interaction) Validate() error {
	if strings.TrimSpace(i.FromUser) == "" || strings.TrimSpace(i.ToUser) == "" {
		return fmt.Errorf("interaction requires both a sender and a recipient")
	}
	if i.FromUser == i.ToUser {
		return fmt.Errorf("interaction sender and recipient must differ")
	}
	if !i.Type.IsValid() {
		return fmt.Errorf("unknown interaction type: %s", string(i.Type))
	}
	if !i.Priority.IsValid() {
		return fmt.Errorf("unknown priority: %s", string(i.Priority))
	}
	return nil
}

// IsPending reports whether the interaction still awaits a response
func (i *Interaction) IsPending() bool {
	return i.Status == InteractionPending
}
