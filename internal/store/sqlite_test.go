package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(ctx))
	return s
}

func TestInsertAndGetMessage(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := Message{
		ID:        "m-1",
		From:      "me@example.com",
		ReplyTo:   "Ada <ada@example.com>",
		Subject:   "[Portfolio] Hello",
		TextBody:  "Name: Ada",
		Raw:       []byte("raw"),
		RawSize:   3,
		CreatedAt: created,
	}
	require.NoError(t, s.InsertMessage(ctx, msg, []Recipient{{Email: "inbox@example.com", Type: "to"}}))

	got, recipients, err := s.GetMessage(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, msg.ReplyTo, got.ReplyTo)
	assert.Equal(t, msg.Raw, got.Raw)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, []Recipient{{Email: "inbox@example.com", Type: "to"}}, recipients)

	_, _, err = s.GetMessage(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListMessagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertMessage(ctx, Message{
			ID:        fmt.Sprintf("m-%d", i),
			From:      "me@example.com",
			Subject:   fmt.Sprintf("subject %d", i),
			Raw:       []byte{},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}, []Recipient{{Email: "inbox@example.com", Type: "to"}}))
	}

	page, total, err := s.ListMessages(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "m-4", page[0].ID)
	assert.Equal(t, "m-3", page[1].ID)
	assert.Equal(t, []string{"inbox@example.com"}, page[0].To)

	last, _, err := s.ListMessages(ctx, 4, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "m-0", last[0].ID)
}

func TestDeleteMessageCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.InsertMessage(ctx, Message{ID: "m-1", Raw: []byte{}, CreatedAt: time.Now()},
		[]Recipient{{Email: "a@example.com", Type: "to"}}))

	deleted, err := s.DeleteMessage(ctx, "m-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteMessage(ctx, "m-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	recipients, err := s.getRecipients(ctx, "m-1")
	require.NoError(t, err)
	assert.Empty(t, recipients)
}
