package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType discriminates the thread item payload variants.
type ItemType string

const (
	ItemTypeUserMessage      ItemType = "user_message"
	ItemTypeAssistantMessage ItemType = "assistant_message"
	ItemTypeClientToolCall   ItemType = "client_tool_call"
	ItemTypeProgressUpdate   ItemType = "progress_update"
)

// ItemPayload is the type-specific portion of a ThreadItem.
type ItemPayload interface {
	itemPayload()
}

// ThreadItem is one event within a thread. On the wire it is a flat JSON
// object: the common fields below plus the payload fields of the variant
// selected by "type". Unknown discriminators fail decode.
type ThreadItem struct {
	ID        string
	ThreadID  string
	CreatedAt time.Time
	Type      ItemType
	Payload   ItemPayload
}

// UserMessageContent is a single content part of a user message.
type UserMessageContent struct {
	Type string `json:"type"` // "input_text"
	Text string `json:"text"`
}

// InferenceOptions captures per-message model overrides supplied by the client.
type InferenceOptions struct {
	Model      *string `json:"model,omitempty"`
	ToolChoice *string `json:"tool_choice,omitempty"`
}

// UserMessagePayload is the payload of a user_message item.
type UserMessagePayload struct {
	Content          []UserMessageContent `json:"content"`
	InferenceOptions *InferenceOptions    `json:"inference_options,omitempty"`
}

// AssistantMessageContent is a single content part of an assistant message.
type AssistantMessageContent struct {
	Type string `json:"type"` // "output_text"
	Text string `json:"text"`
}

// AssistantMessagePayload is the payload of an assistant_message item.
type AssistantMessagePayload struct {
	Content []AssistantMessageContent `json:"content"`
}

// ClientToolCallPayload is the payload of a client_tool_call item.
type ClientToolCallPayload struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Status    string          `json:"status,omitempty"` // "pending" or "completed"
	Output    json.RawMessage `json:"output,omitempty"`
}

// ProgressUpdatePayload is the payload of a progress_update item.
type ProgressUpdatePayload struct {
	Text string  `json:"text"`
	Icon *string `json:"icon,omitempty"`
}

func (*UserMessagePayload) itemPayload()      {}
func (*AssistantMessagePayload) itemPayload() {}
func (*ClientToolCallPayload) itemPayload()   {}
func (*ProgressUpdatePayload) itemPayload()   {}

func newItemPayload(t ItemType) (ItemPayload, error) {
	switch t {
	case ItemTypeUserMessage:
		return &UserMessagePayload{}, nil
	case ItemTypeAssistantMessage:
		return &AssistantMessagePayload{}, nil
	case ItemTypeClientToolCall:
		return &ClientToolCallPayload{}, nil
	case ItemTypeProgressUpdate:
		return &ProgressUpdatePayload{}, nil
	default:
		return nil, fmt.Errorf("unknown thread item type %q", string(t))
	}
}

// itemHeader holds the fields shared by every item variant.
type itemHeader struct {
	ID        string   `json:"id"`
	ThreadID  string   `json:"thread_id"`
	CreatedAt jsonTime `json:"created_at"`
	Type      ItemType `json:"type"`
}

// jsonTime marshals as RFC3339 in UTC so stored timestamps are canonical.
type jsonTime time.Time

func (t jsonTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

func (t *jsonTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*t = jsonTime(parsed.UTC())
	return nil
}

// MarshalJSON flattens the common fields and the payload into one object.
func (i ThreadItem) MarshalJSON() ([]byte, error) {
	if i.Payload == nil {
		return nil, fmt.Errorf("thread item %s has no payload", i.ID)
	}
	payloadJSON, err := json.Marshal(i.Payload)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payloadJSON, &fields); err != nil {
		return nil, err
	}
	headerJSON, err := json.Marshal(itemHeader{
		ID:        i.ID,
		ThreadID:  i.ThreadID,
		CreatedAt: jsonTime(i.CreatedAt),
		Type:      i.Type,
	})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(headerJSON, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the discriminator first, then the matching payload.
func (i *ThreadItem) UnmarshalJSON(data []byte) error {
	var header itemHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	payload, err := newItemPayload(header.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return err
	}
	i.ID = header.ID
	i.ThreadID = header.ThreadID
	i.CreatedAt = time.Time(header.CreatedAt)
	i.Type = header.Type
	i.Payload = payload
	return nil
}

// NewUserMessage builds a user_message item from plain text.
func NewUserMessage(threadID, itemID, text string) *ThreadItem {
	return &ThreadItem{
		ID:        itemID,
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
		Type:      ItemTypeUserMessage,
		Payload: &UserMessagePayload{
			Content: []UserMessageContent{{Type: "input_text", Text: text}},
		},
	}
}

// NewAssistantMessage builds an assistant_message item from plain text.
func NewAssistantMessage(threadID, itemID, text string) *ThreadItem {
	return &ThreadItem{
		ID:        itemID,
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
		Type:      ItemTypeAssistantMessage,
		Payload: &AssistantMessagePayload{
			Content: []AssistantMessageContent{{Type: "output_text", Text: text}},
		},
	}
}
