package domain

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation, provider-agnostic.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
