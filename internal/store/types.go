package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/docvault/docvault/internal/rag"
)

// Document processing statuses. A document is only usable for chat once it
// reaches StatusReady.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document is an uploaded file tracked through the ingestion lifecycle.
type Document struct {
	ID           uuid.UUID
	Filename     string
	Title        string
	ContentType  string
	SizeBytes    int64
	PageCount    int
	ChunkCount   int
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Ready reports whether the document finished processing successfully.
func (d *Document) Ready() bool { return d.Status == StatusReady }

// Session is a conversation bound to one document.
type Session struct {
	ID           uuid.UUID
	DocumentID   uuid.UUID
	Title        string
	ModelName    string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is one turn of a session's conversation. Citations are only
// present on assistant messages that referenced document content.
type Message struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Role           string
	Content        string
	Citations      []rag.Citation
	SequenceNumber int
	CreatedAt      time.Time
}
