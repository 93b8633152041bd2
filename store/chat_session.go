package store

type ChatSession struct {
	ID        int32
	UID       string
	OwnerKey  string // stable account key, e.g. email
	Title     string
	CreatedTs int64
	UpdatedTs int64
}

type FindChatSession struct {
	ID       *int32
	UID      *string
	OwnerKey *string
	// Search filters by substring match on the session title or on any
	// message content, case-insensitive.
	Search *string
}

type UpdateChatSession struct {
	ID        int32
	Title     *string
	UpdatedTs *int64
}

type DeleteChatSession struct {
	ID int32
}

type ChatMessageRole string

const (
	ChatMessageRoleUser      ChatMessageRole = "USER"
	ChatMessageRoleAssistant ChatMessageRole = "ASSISTANT"
)

type ChatMessage struct {
	ID        int32
	UID       string
	SessionID int32
	Role      ChatMessageRole
	Content   string
	Payload   string // JSON: resolved product refs, comparison table
	CreatedTs int64
}

type FindChatMessage struct {
	ID        *int32
	SessionID *int32
}
