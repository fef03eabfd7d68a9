package core

import (
	"fmt"
	"strings"
	"time"
)

// Type categorizes a notification
type Type string

const (
	TypeInfo                Type = "info"
	TypeSuccess             Type = "success"
	TypeWarning             Type = "warning"
	TypeError               Type = "error"
	TypeGovernanceViolation Type = "governance_violation"
	TypeTrustBoundaryBreach Type = "trust_boundary_breach"
	TypeObserverSuggestion  Type = "observer_suggestion"
	TypeSystemEvent         Type = "system_event"
	TypeSocial              Type = "social"
	TypeInteraction         Type = "interaction"
)

// Types returns all known notification types
func Types() []Type {
	return []Type{
		TypeInfo, TypeSuccess, TypeWarning, TypeError,
		TypeGovernanceViolation, TypeTrustBoundaryBreach,
		TypeObserverSuggestion, TypeSystemEvent,
		TypeSocial, TypeInteraction,
	}
}

// IsValid reports whether t is a known notification type
func (t Type) IsValid() bool {
	switch t {
	case TypeInfo, TypeSuccess, TypeWarning, TypeError,
		TypeGovernanceViolation, TypeTrustBoundaryBreach,
		TypeObserverSuggestion, TypeSystemEvent,
		TypeSocial, TypeInteraction:
		return true
	default:
		return false
	}
}

// Priority represents notification urgency
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether p is a known priority
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// ActionKind describes what tapping a notification action does
type ActionKind string

const (
	ActionKindLink    ActionKind = "link"
	ActionKindButton  ActionKind = "button"
	ActionKindDismiss ActionKind = "dismiss"
)

// Action is a single actionable element attached to a notification.
// A link action carries a URL; a button action names a registered handler.
type Action struct {
	ID      string     `json:"id"`
	Label   string     `json:"label"`
	Kind    ActionKind `json:"kind"`
	URL     string     `json:"url,omitempty"`
	Handler string     `json:"handler,omitempty"`
}

// Validate validates the action
func (a *Action) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("action id is required")
	}
	if strings.TrimSpace(a.Label) == "" {
		return fmt.Errorf("action label is required")
	}
	switch a.Kind {
	case ActionKindLink:
		if a.URL == "" {
			return fmt.Errorf("link action %s requires a url", a.ID)
		}
	case ActionKindButton:
		if a.Handler == "" {
			return fmt.Errorf("button action %s requires a handler", a.ID)
		}
	case ActionKindDismiss:
	default:
		return fmt.Errorf("unknown action kind: %s", string(a.Kind))
	}
	return nil
}

// Notification represents a single user-facing alert
type Notification struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Priority    Priority   `json:"priority"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Source      string     `json:"source,omitempty"`
	Read        bool       `json:"read"`
	Dismissible bool       `json:"dismissible"`
	Actions     []Action   `json:"actions,omitempty"`
	Payload     *Payload   `json:"payload,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// NewNotification creates a notification with defaults applied.
// The caller assigns the ID; stores treat an empty ID as invalid.
func NewNotification(notifType Type, title, message string) *Notification {
	return &Notification{
		Type:      notifType,
		Priority:  PriorityMedium,
		Title:     title,
		Message:   message,
		CreatedAt: time.Now(),
	}
}

// WithID sets the id and returns the notification for chaining
func (n *Notification) WithID(id string) *Notification {
	n.ID = id
	return n
}

// WithPriority sets the priority and returns the notification for chaining
func (n *Notification) WithPriority(priority Priority) *Notification {
	n.Priority = priority
	return n
}

// WithSource sets the producing subsystem and returns the notification for chaining
func (n *Notification) WithSource(source string) *Notification {
	n.Source = source
	return n
}

// WithExpiry sets the expiration time relative to creation and returns the
// notification for chaining
func (n *Notification) WithExpiry(ttl time.Duration) *Notification {
	expiresAt := n.CreatedAt.Add(ttl)
	n.ExpiresAt = &expiresAt
	return n
}

// WithAction appends an action and returns the notification for chaining
func (n *Notification) WithAction(action Action) *Notification {
	n.Actions = append(n.Actions, action)
	return n
}

// WithPayload attaches a typed payload and returns the notification for chaining
func (n *Notification) WithPayload(payload *Payload) *Notification {
	n.Payload = payload
	return n
}

// Dismissable marks the notification dismissible and returns it for chaining
func (n *Notification) Dismissable() *Notification {
	n.Dismissible = true
	return n
}

// IsExpired checks if the notification has expired
func (n *Notification) IsExpired() bool {
	if n.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*n.ExpiresAt)
}

// MarkAsRead flips the read flag. Read state is monotonic: there is no
// corresponding mark-unread operation.
func (n *Notification) MarkAsRead() {
	n.Read = true
}

// Clone creates a deep copy of the notification. Broadcasts hand clones to
// subscribers so no callback can mutate the stored record.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}

	clone := *n

	if n.ExpiresAt != nil {
		expiresAt := *n.ExpiresAt
		clone.ExpiresAt = &expiresAt
	}
	if n.Actions != nil {
		clone.Actions = make([]Action, len(n.Actions))
		copy(clone.Actions, n.Actions)
	}
	if n.Payload != nil {
		clone.Payload = n.Payload.clone()
	}

	return &clone
}

// Validate validates the notification
func (n *Notification) Validate() error {
	if strings.TrimSpace(n.Title) == "" && strings.TrimSpace(n.Message) == "" {
		return fmt.Errorf("notification must have either title or message")
	}
	if len(n.Title) > 200 {
		return fmt.Errorf("title exceeds maximum length of 200 characters")
	}
	if len(n.Message) > 5000 {
		return fmt.Errorf("message exceeds maximum length of 5000 characters")
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("unknown notification type: %s", string(n.Type))
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("unknown priority: %s", string(n.Priority))
	}
	if n.ExpiresAt != nil && !n.ExpiresAt.After(n.CreatedAt) {
		return fmt.Errorf("expiry must be strictly after creation time")
	}
	for i := range n.Actions {
		if err := n.Actions[i].Validate(); err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
	}
	if n.Payload != nil {
		if err := n.Payload.Validate(); err != nil {
			return fmt.Errorf("payload: %w", err)
		}
	}
	return nil
}
