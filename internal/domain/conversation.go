package domain

import "time"

// Conversation is the aggregate root: ordered chunks plus metadata.
type Conversation struct {
	ID             int64
	ScenarioTitle  *string
	OriginalTitle  *string
	URL            *string
	CreatedAt      time.Time
	Chunks         []ConversationChunk
}

// NewConversation validates that chunks form a contiguous 0..N-1 order_index
// sequence and all belong to this conversation, which before persistence
// means they are unassigned (ConversationID 0). At least one chunk is
// required.
func NewConversation(scenarioTitle, originalTitle, url *string, chunks []ConversationChunk) (Conversation, error) {
	if len(chunks) == 0 {
		return Conversation{}, Validationf("conversation must have at least one chunk")
	}
	if err := validateContiguousOrder(chunks); err != nil {
		return Conversation{}, err
	}
	for _, c := range chunks {
		if c.ConversationID != 0 {
			return Conversation{}, Validationf("chunk %d already belongs to conversation %d", c.OrderIndex, c.ConversationID)
		}
	}
	return Conversation{
		ScenarioTitle: scenarioTitle,
		OriginalTitle: originalTitle,
		URL:           url,
		Chunks:        chunks,
	}, nil
}

func validateContiguousOrder(chunks []ConversationChunk) error {
	for i, c := range chunks {
		if c.OrderIndex != i {
			return Validationf("chunk order_index must be contiguous starting at 0: expected %d, got %d", i, c.OrderIndex)
		}
	}
	return nil
}

// IsSearchable reports whether every chunk has an embedding of dimension D.
func (c Conversation) IsSearchable(dimension int) bool {
	for _, chunk := range c.Chunks {
		if !chunk.IsSearchable(dimension) {
			return false
		}
	}
	return true
}

// ChunkCount returns the number of chunks in the conversation.
func (c Conversation) ChunkCount() int { return len(c.Chunks) }
