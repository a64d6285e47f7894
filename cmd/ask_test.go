package cmd

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/docvault/docvault/internal/store"
)

func TestCheckSessionDocument(t *testing.T) {
	documentID := uuid.New()
	session := &store.Session{ID: uuid.New(), DocumentID: documentID}

	assert.NoError(t, checkSessionDocument(session, documentID))

	err := checkSessionDocument(session, uuid.New())
	assert.Error(t, err, "a session from another document must be rejected")
	assert.Contains(t, err.Error(), session.ID.String())
	assert.Contains(t, err.Error(), documentID.String())
}
