package notification

import "fmt"

// Recipient is a concrete, contactable target produced by the resolver.
// RecipientType records which resolution strategy produced it.
type Recipient struct {
	UserID        string         `json:"user_id"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone,omitempty"`
	Name          string         `json:"name,omitempty"`
	RecipientType string         `json:"recipient_type"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Valid reports whether the recipient can be dispatched to at all. Channels
// with extra requirements (whatsapp needs a phone) are checked at send time.
func (r Recipient) Valid() bool {
	return r.UserID != "" && r.Email != "" && r.RecipientType != ""
}

// HasPhone reports whether the recipient can receive phone-based channels.
func (r Recipient) HasPhone() bool {
	return r.Phone != ""
}

// DisplayName returns the recipient name, falling back to the email address.
func (r Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Email
}

func (r Recipient) String() string {
	return fmt.Sprintf("Recipient[%s, %s, %s]", r.Name, r.Email, r.RecipientType)
}
