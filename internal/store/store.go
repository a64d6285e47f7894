package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/docvault/docvault/internal/provider"
	"github.com/docvault/docvault/internal/rag"
)

// DBTX is the subset of pgx operations Store needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it, so the same query code runs inside and outside
// transactions, and tests can substitute a fake.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists documents, chunks, sessions, and messages in PostgreSQL.
// It implements rag.ChunkSource and rag.HistorySource for the answer
// pipeline.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     DBTX
	pool   *pgxpool.Pool // transaction support; nil in unit tests
	logger *slog.Logger
}

// New creates a Store. pool may be nil when db is a test fake; message
// appends then run without a transaction.
func New(db DBTX, pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, pool: pool, logger: logger}
}

// NewFromPool creates a Store backed by a connection pool.
func NewFromPool(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return New(pool, pool, logger)
}

// --- documents ---

const documentColumns = `id, filename, title, content_type, size_bytes,
	page_count, chunk_count, status, COALESCE(error_message, ''), created_at, updated_at`

// CreateDocument registers a new document in StatusPending.
func (s *Store) CreateDocument(ctx context.Context, filename, title, contentType string, sizeBytes int64) (*Document, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO documents (filename, title, content_type, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+documentColumns,
		filename, title, contentType, sizeBytes, StatusPending)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("creating document: %w", err)
	}

	s.logger.Debug("created document", "id", doc.ID, "filename", filename)
	return doc, nil
}

// GetDocument returns a document by ID, or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, documentID uuid.UUID) (*Document, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID)

	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document %s: %w", documentID, err)
	}
	return doc, nil
}

// ListDocuments returns documents ordered by creation time descending.
func (s *Store) ListDocuments(ctx context.Context, limit, offset int32) ([]*Document, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+documentColumns+` FROM documents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument deletes a document; its chunks and sessions cascade.
func (s *Store) DeleteDocument(ctx context.Context, documentID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}

	s.logger.Debug("deleted document", "id", documentID)
	return nil
}

// SetDocumentStatus transitions a document's processing status. errMessage
// is only stored for StatusFailed.
func (s *Store) SetDocumentStatus(ctx context.Context, documentID uuid.UUID, status, errMessage string) error {
	var errPtr *string
	if status == StatusFailed && errMessage != "" {
		errPtr = &errMessage
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`, documentID, status, errPtr)
	if err != nil {
		return fmt.Errorf("updating document %s status: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	return nil
}

// SetDocumentReady marks a document as processed and records its final
// chunk and page counts.
func (s *Store) SetDocumentReady(ctx context.Context, documentID uuid.UUID, chunkCount, pageCount int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE documents
		SET status = $2, chunk_count = $3, page_count = $4,
		    error_message = NULL, updated_at = now()
		WHERE id = $1`, documentID, StatusReady, chunkCount, pageCount)
	if err != nil {
		return fmt.Errorf("marking document %s ready: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}

	s.logger.Debug("document ready", "id", documentID, "chunks", chunkCount)
	return nil
}

// DocumentName implements rag.ChunkSource.
func (s *Store) DocumentName(ctx context.Context, documentID uuid.UUID) (string, error) {
	var name string
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(NULLIF(title, ''), filename) FROM documents WHERE id = $1`,
		documentID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("document %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting document %s name: %w", documentID, err)
	}
	return name, nil
}

// --- chunks ---

// InsertChunks stores a document's chunks in one transaction. Chunk IDs are
// generated here so callers can correlate embeddings before insertion.
func (s *Store) InsertChunks(ctx context.Context, documentID uuid.UUID, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if s.pool == nil {
		return s.insertChunks(ctx, s.db, documentID, chunks)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("chunk insert rollback", "error", err)
		}
	}()

	if err := s.insertChunks(ctx, tx, documentID, chunks); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk insert: %w", err)
	}

	s.logger.Debug("inserted chunks", "document_id", documentID, "count", len(chunks))
	return nil
}

func (s *Store) insertChunks(ctx context.Context, db DBTX, documentID uuid.UUID, chunks []rag.Chunk) error {
	for i, c := range chunks {
		var embedding *pgvector.Vector
		if len(c.Embedding) > 0 {
			vec := pgvector.NewVector(c.Embedding)
			embedding = &vec
		}

		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}

		_, err := db.Exec(ctx, `
			INSERT INTO document_chunks
				(id, document_id, chunk_index, content, page_number,
				 start_char, end_char, token_count, embedding, embedding_model)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, documentID, c.Index, c.Content, nullableInt(c.PageNumber),
			c.StartChar, c.EndChar, c.TokenCount, embedding, c.EmbeddingModel)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}
	return nil
}

// ChunksByDocument implements rag.ChunkSource: all chunks of a document
// ordered by index, embeddings included.
func (s *Store) ChunksByDocument(ctx context.Context, documentID uuid.UUID) ([]rag.Chunk, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, chunk_index, content,
		       COALESCE(page_number, 0), start_char, end_char, token_count,
		       embedding, COALESCE(embedding_model, ''), created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index`, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []rag.Chunk
	for rows.Next() {
		var c rag.Chunk
		var embedding *pgvector.Vector
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content,
			&c.PageNumber, &c.StartChar, &c.EndChar, &c.TokenCount,
			&embedding, &c.EmbeddingModel, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if embedding != nil {
			c.Embedding = embedding.Slice()
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// --- sessions ---

const sessionColumns = `id, document_id, COALESCE(title, ''),
	COALESCE(model_name, ''), message_count, created_at, updated_at`

// CreateSession starts a conversation on a document. The document must be
// ready for chat.
func (s *Store) CreateSession(ctx context.Context, documentID uuid.UUID, title, modelName string) (*Session, error) {
	doc, err := s.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Ready() {
		return nil, fmt.Errorf("document %s status %q: %w", documentID, doc.Status, ErrDocumentNotReady)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO chat_sessions (document_id, title, model_name)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		RETURNING `+sessionColumns,
		documentID, title, modelName)

	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", session.ID, "document_id", documentID)
	return session, nil
}

// GetSession returns a session by ID, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, sessionID)

	session, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", sessionID, err)
	}
	return session, nil
}

// ListSessions lists sessions ordered by last activity descending.
func (s *Store) ListSessions(ctx context.Context, limit, offset int32) ([]*Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM chat_sessions
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteSession deletes a session and its messages.
func (s *Store) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// --- messages ---

// AppendMessages adds messages to a session with contiguous sequence
// numbers. The whole append runs in one transaction with the session row
// locked, so concurrent appends cannot interleave sequence numbers.
func (s *Store) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	// Without a pool there is no transaction support; unit tests provide
	// their own synchronization.
	if s.pool == nil {
		return s.appendMessages(ctx, s.db, sessionID, messages)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Debug("message append rollback", "error", err)
		}
	}()

	// Serialize appends per session to keep sequence numbers gapless.
	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM chat_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("locking session %s: %w", sessionID, err)
	}

	if err := s.appendMessages(ctx, tx, sessionID, messages); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing message append: %w", err)
	}

	s.logger.Debug("appended messages", "session_id", sessionID, "count", len(messages))
	return nil
}

func (s *Store) appendMessages(ctx context.Context, db DBTX, sessionID uuid.UUID, messages []*Message) error {
	var maxSeq int
	err := db.QueryRow(ctx, `
		SELECT COALESCE(MAX(sequence_number), 0)
		FROM chat_messages WHERE session_id = $1`, sessionID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("reading sequence number: %w", err)
	}

	for i, msg := range messages {
		var citationsJSON []byte
		if len(msg.Citations) > 0 {
			citationsJSON, err = json.Marshal(msg.Citations)
			if err != nil {
				return fmt.Errorf("marshaling citations for message %d: %w", i, err)
			}
		}

		_, err = db.Exec(ctx, `
			INSERT INTO chat_messages (session_id, role, content, citations, sequence_number)
			VALUES ($1, $2, $3, $4, $5)`,
			sessionID, msg.Role, msg.Content, citationsJSON, maxSeq+i+1)
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	_, err = db.Exec(ctx, `
		UPDATE chat_sessions
		SET message_count = $2, updated_at = now()
		WHERE id = $1`, sessionID, maxSeq+len(messages))
	if err != nil {
		return fmt.Errorf("updating session metadata: %w", err)
	}
	return nil
}

// Messages returns a session's messages ordered by sequence number.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, role, content, citations, sequence_number, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY sequence_number
		LIMIT $2 OFFSET $3`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("loading messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var citationsJSON []byte
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&citationsJSON, &msg.SequenceNumber, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if len(citationsJSON) > 0 {
			if err := json.Unmarshal(citationsJSON, &msg.Citations); err != nil {
				s.logger.Warn("skipping malformed citations",
					"message_id", msg.ID, "error", err)
			}
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// historyLoadLimit bounds how many messages are loaded per answer; the
// engine windows them down further.
const historyLoadLimit = 1000

// History implements rag.HistorySource: the session's turns oldest first.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID) ([]provider.Turn, error) {
	messages, err := s.Messages(ctx, sessionID, historyLoadLimit, 0)
	if err != nil {
		return nil, err
	}

	turns := make([]provider.Turn, 0, len(messages))
	for _, msg := range messages {
		turns = append(turns, provider.Turn{Role: msg.Role, Content: msg.Content})
	}
	return turns, nil
}

// --- scan helpers ---

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Filename, &d.Title, &d.ContentType, &d.SizeBytes,
		&d.PageCount, &d.ChunkCount, &d.Status, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.DocumentID, &s.Title, &s.ModelName,
		&s.MessageCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func nullableInt(v int) *int {
	if v <= 0 {
		return nil
	}
	return &v
}
