package relay

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bot is an upstream bot record. Only Nickname and Email are interpreted; every
// other upstream field is carried through untouched.
type Bot struct {
	Nickname string
	Email    string

	raw map[string]json.RawMessage
}

// UnmarshalJSON keeps the full upstream object while extracting the fields the
// relay consumes.
func (b *Bot) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("decode bot: %w", err)
	}
	var nickname, email string
	if err := stringField(fields, "nickname", &nickname); err != nil {
		return fmt.Errorf("decode bot: %w", err)
	}
	if err := stringField(fields, "email", &email); err != nil {
		return fmt.Errorf("decode bot: %w", err)
	}
	*b = Bot{Nickname: nickname, Email: email, raw: fields}
	return nil
}

// MarshalJSON emits the upstream object verbatim when one was decoded.
func (b Bot) MarshalJSON() ([]byte, error) {
	if b.raw == nil {
		return json.Marshal(map[string]string{"nickname": b.Nickname, "email": b.Email})
	}
	return json.Marshal(b.raw)
}

// Field returns a raw upstream field by name.
func (b Bot) Field(name string) (json.RawMessage, bool) {
	v, ok := b.raw[name]
	return v, ok
}

// Clone returns a copy that shares no mutable state with b.
func (b Bot) Clone() Bot {
	cp := b
	cp.raw = cloneRaw(b.raw)
	return cp
}

// Category is an upstream category record, passed through verbatim.
type Category struct {
	ID string

	raw map[string]json.RawMessage
}

// UnmarshalJSON keeps the full upstream object while extracting the id.
func (c *Category) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return fmt.Errorf("decode category: %w", err)
	}
	var id string
	if err := stringField(fields, "id", &id); err != nil {
		return fmt.Errorf("decode category: %w", err)
	}
	*c = Category{ID: id, raw: fields}
	return nil
}

// MarshalJSON emits the upstream object verbatim when one was decoded.
func (c Category) MarshalJSON() ([]byte, error) {
	if c.raw == nil {
		return json.Marshal(map[string]string{"id": c.ID})
	}
	return json.Marshal(c.raw)
}

// Field returns a raw upstream field by name.
func (c Category) Field(name string) (json.RawMessage, bool) {
	v, ok := c.raw[name]
	return v, ok
}

// Registration associates an alt account and a bot with a category. The bot
// is a snapshot taken when the registration was made.
type Registration struct {
	AltAccount   string    `json:"altAccount"`
	BotName      string    `json:"botName"`
	CategoryID   string    `json:"categoryId"`
	Bot          Bot       `json:"bot"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Clone returns a deep copy of the registration.
func (r Registration) Clone() Registration {
	cp := r
	cp.Bot = r.Bot.Clone()
	return cp
}

// Confirmation is returned to callers after a successful registration.
type Confirmation struct {
	Nickname   string `json:"nickname"`
	Email      string `json:"email"`
	AltAccount string `json:"altAccount"`
	CategoryID string `json:"categoryId"`
}

// RegisterRequest carries the inputs of RegisterBot. AuthCode is reserved for
// a future upstream token exchange and is only checked for presence.
type RegisterRequest struct {
	AuthCode   string `json:"authCode" validate:"required"`
	AltAccount string `json:"altAccount" validate:"required"`
	BotName    string `json:"botName" validate:"required"`
	CategoryID string `json:"categoryId" validate:"required"`
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	return fields, nil
}

func stringField(fields map[string]json.RawMessage, name string, dst *string) error {
	v, ok := fields[name]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("field %q: %w", name, err)
	}
	return nil
}

func cloneRaw(src map[string]json.RawMessage) map[string]json.RawMessage {
	if src == nil {
		return nil
	}
	dst := make(map[string]json.RawMessage, len(src))
	for k, v := range src {
		dst[k] = append(json.RawMessage(nil), v...)
	}
	return dst
}
