package store

// Visibility controls who can read a conversation.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Conversation is one chat session. The UID is caller-supplied and stable
// across a session; exactly one row exists per UID (enforced by a uniqueness
// constraint in the driver). The owner never changes after creation.
type Conversation struct {
	UID            string
	OwnerID        int32
	Title          string
	Visibility     Visibility
	CreatedTs      int64
	LastActivityTs int64
	ID             int32
}

type FindConversation struct {
	ID      *int32
	UID     *string
	OwnerID *int32
}

type UpdateConversation struct {
	Title          *string
	Visibility     *Visibility
	LastActivityTs *int64
	UID            string
}

type DeleteConversation struct {
	UID string
}
