package chat

const (
	ChatRoleUser   = "user"      // Player
	ChatRoleAgent  = "assistant" // Game master / narrator
	ChatRoleSystem = "system"    // Rules and world context
)

// ChatMessage is a single message in the conversation with the model.
// The role/content shape is the one chat-completion APIs expect.
type ChatMessage struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}
