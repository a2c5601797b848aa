package model

import (
	"time"
)

// ThreadMetadata identifies a conversation thread. Items are stored separately;
// the metadata snapshot never embeds them.
type ThreadMetadata struct {
	ID        string                 `json:"id"`
	Title     *string                `json:"title,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the metadata.
func (m *ThreadMetadata) Clone() *ThreadMetadata {
	if m == nil {
		return nil
	}
	out := *m
	if m.Title != nil {
		title := *m.Title
		out.Title = &title
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Thread is the API representation of a thread with its items inlined.
// Persistence always goes through ThreadMetadata; the store strips items.
type Thread struct {
	ThreadMetadata
	Items []ThreadItem `json:"items,omitempty"`
}

// Metadata returns the thread's metadata without the embedded items.
func (t *Thread) Metadata() *ThreadMetadata {
	return t.ThreadMetadata.Clone()
}

// Attachment is a file associated with a thread item. This service never
// persists attachments; the type exists so the store contract is complete.
type Attachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}
