package core

import "fmt"

// PayloadKind discriminates the payload variants
type PayloadKind string

const (
	PayloadKindGovernance  PayloadKind = "governance"
	PayloadKindSocial      PayloadKind = "social"
	PayloadKindInteraction PayloadKind = "interaction"
	PayloadKindExtra       PayloadKind = "extra"
)

// GovernancePayload carries policy and trust context for governance alerts
type GovernancePayload struct {
	RuleID     string  `json:"rule_id,omitempty"`
	PolicyName string  `json:"policy_name,omitempty"`
	TrustScore float64 `json:"trust_score,omitempty"`
	BoundaryID string  `json:"boundary_id,omitempty"`
	AuditRef   string  `json:"audit_ref,omitempty"`
}

// SocialPayload carries the context of a social event (like, comment, share, mention)
type SocialPayload struct {
	PostID    string `json:"post_id,omitempty"`
	CommentID string `json:"comment_id,omitempty"`
	ActorID   string `json:"actor_id"`
	ActorName string `json:"actor_name,omitempty"`
}

// InteractionPayload links a notification back to the directed interaction
// that produced it
type InteractionPayload struct {
	InteractionID string `json:"interaction_id"`
	FromUser      string `json:"from_user"`
	ToUser        string `json:"to_user"`
	Intent        string `json:"intent"`
}

// Payload is a tagged union over the payload variants. Exactly one variant
// matching Kind is set; Extra is the catch-all for dynamic extension fields.
type Payload struct {
	Kind        PayloadKind            `json:"kind"`
	Governance  *GovernancePayload     `json:"governance,omitempty"`
	Social      *SocialPayload         `json:"social,omitempty"`
	Interaction *InteractionPayload    `json:"interaction,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// NewGovernancePayload wraps a governance variant
func NewGovernancePayload(p GovernancePayload) *Payload {
	return &Payload{Kind: PayloadKindGovernance, Governance: &p}
}

// NewSocialPayload wraps a social variant
func NewSocialPayload(p SocialPayload) *Payload {
	return &Payload{Kind: PayloadKindSocial, Social: &p}
}

// NewInteractionPayload wraps an interaction variant
func NewInteractionPayload(p InteractionPayload) *Payload {
	return &Payload{Kind: PayloadKindInteraction, Interaction: &p}
}

// NewExtraPayload wraps free-form extension fields
func NewExtraPayload(fields map[string]interface{}) *Payload {
	return &Payload{Kind: PayloadKindExtra, Extra: fields}
}

// Validate checks that the variant matching Kind is present
func (p *Payload) Validate() error {
	switch p.Kind {
	case PayloadKindGovernance:
		if p.Governance == nil {
			return fmt.Errorf("governance payload variant is nil")
		}
	case PayloadKindSocial:
		if p.Social == nil {
			return fmt.Errorf("social payload variant is nil")
		}
	case PayloadKindInteraction:
		if p.Interaction == nil {
			return fmt.Errorf("interaction payload variant is nil")
		}
	case PayloadKindExtra:
		if p.Extra == nil {
			return fmt.Errorf("extra payload variant is nil")
		}
	default:
		return fmt.Errorf("unknown payload kind: %s", string(p.Kind))
	}
	return nil
}

func (p *Payload) clone() *Payload {
	if p == nil {
		return nil
	}
	clone := Payload{Kind: p.Kind}
	if p.Governance != nil {
		g := *p.Governance
		clone.Governance = &g
	}
	if p.Social != nil {
		s := *p.Social
		clone.Social = &s
	}
	if p.Interaction != nil {
		i := *p.Interaction
		clone.Interaction = &i
	}
	if p.Extra != nil {
		clone.Extra = make(map[string]interface{}, len(p.Extra))
		for k, v := range p.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}
