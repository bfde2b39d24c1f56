package export

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/storage"
)

// Message is one turn of a conversation-format export.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Image   string `json:"image,omitempty"`
}

// Conversation is one record rendered as a training exchange.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// renderConversations maps each record onto one conversation: an
// optional system turn carrying the solution, a user turn with the
// query and image reference, and an assistant turn with the ground
// truth answer.
func (e *Exporter) renderConversations(records []*core.Record, cfg *core.ExportConfig) ([]File, error) {
	conversations := make([]Conversation, 0, len(records))
	for _, record := range records {
		var messages []Message
		if record.Solution != "" {
			messages = append(messages, Message{Role: "system", Content: record.Solution})
		}
		messages = append(messages, Message{
			Role:    "user",
			Content: record.Query,
			Image:   imageRef(record, cfg),
		})
		messages = append(messages, Message{
			Role:    "assistant",
			Content: record.GroundTruthAnswer,
		})
		conversations = append(conversations, Conversation{Messages: messages})
	}

	data, err := json.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	return []File{{Name: "conversations.json", Data: data}}, nil
}
