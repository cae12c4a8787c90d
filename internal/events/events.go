package events

import "context"

// Event types
const (
	EventAgreementUpdated  = "agreement_updated"
	EventDiscussionUpdated = "discussion_updated"
	EventInviteUpdated     = "invite_updated"
	EventActionSubmitted   = "action_submitted"
	EventActionConfirmed   = "action_confirmed"
	EventActionFailed      = "action_failed"
)

// Streams
const (
	StreamAgreements = "events:agreements"
	StreamInvites    = "events:invites"
	StreamActions    = "events:actions"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
