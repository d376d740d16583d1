package chat

import "time"

// Role identifies the sender context of a message within a conversation.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleService    Role = "service"
	RoleTeamMember Role = "team_member"
)

// Reaction is a single emoji reaction left on a message.
type Reaction struct {
	Emoji       string `json:"emoji"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Message is one chat message in a conversation. Messages are created
// server-side; the client only ever mutates the read flag and reactions.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	SenderName     string     `json:"senderName"`
	SenderRole     Role       `json:"senderRole,omitempty"`
	Body           string     `json:"content"`
	ImageURL       string     `json:"imageUrl,omitempty"`
	IsRead         bool       `json:"isRead"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	Reactions      []Reaction `json:"reactions,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// User is the authenticated viewer's identity.
type User struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      Role   `json:"role,omitempty"`
}

// ConversationKind distinguishes visit-bound threads from support threads.
type ConversationKind string

const (
	KindVisit   ConversationKind = "visit"
	KindSupport ConversationKind = "support"
)

// Conversation is the thread of messages tied to a visit or a support channel.
type Conversation struct {
	ID                 string           `json:"id"`
	Kind               ConversationKind `json:"kind"`
	Title              string           `json:"title"`
	CounterpartID      string           `json:"counterpartId"`
	CounterpartName    string           `json:"counterpartName"`
	UnreadCount        int              `json:"unreadCount"`
	LastMessageAt      time.Time        `json:"lastMessageAt"`
	LastMessagePreview string           `json:"lastMessagePreview"`
}

// Pagination describes the backend's page envelope.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is one backend page of messages, newest message first within the page.
type Page struct {
	Data       []Message  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// HasNext reports whether an older page exists after this one.
func (p Page) HasNext() bool {
	return p.Pagination.Page < p.Pagination.TotalPages
}
