package notification

import "errors"

// Channel tokens understood by the dispatch engine.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
	ChannelInApp    = "in_app"
)

// Recipient-type tokens understood by the resolver.
const (
	RecipientProjectOwner         = "project_owner"
	RecipientAdmins               = "admins"
	RecipientWorkflowParticipants = "workflow_participants"
	RecipientSpecificUsers        = "specific_users"
	RecipientManual               = "manual"
)

// Request is an inbound workflow notification event. It is immutable once
// constructed: the engine and resolver only read it.
type Request struct {
	EventType      string         `json:"event_type"`
	EntityType     string         `json:"entity_type"`
	EntityID       string         `json:"entity_id"`
	Channels       []string       `json:"channels"`
	RecipientTypes []string       `json:"recipient_types"`
	Context        map[string]any `json:"context,omitempty"`
}

// Validate checks the structural requirements on a request.
func (r *Request) Validate() error {
	if r.EventType == "" {
		return errors.New("event_type is required")
	}
	if len(r.Channels) == 0 {
		return errors.New("at least one channel is required")
	}
	if len(r.RecipientTypes) == 0 {
		return errors.New("at least one recipient type is required")
	}
	return nil
}

// ContextStrings reads a list of strings out of the request context. JSON
// decoding produces []any, so both []string and []any are accepted.
func (r *Request) ContextStrings(key string) []string {
	if r.Context == nil {
		return nil
	}
	switch v := r.Context[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ContextMap reads a nested object out of the request context.
func (r *Request) ContextMap(key string) map[string]any {
	if r.Context == nil {
		return nil
	}
	if m, ok := r.Context[key].(map[string]any); ok {
		return m
	}
	return nil
}
