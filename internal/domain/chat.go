package domain

// RoleUser marks a message written by the end user.
const RoleUser = "user"

// ChatMessage is one entry of a chat completion request or reply.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
