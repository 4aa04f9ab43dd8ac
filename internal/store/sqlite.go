package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("message not found")

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            from_email TEXT NOT NULL,
            reply_to TEXT NOT NULL DEFAULT '',
            subject TEXT NOT NULL,
            text_body TEXT,
            raw BLOB NOT NULL,
            raw_size INTEGER NOT NULL,
            created_at INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS recipients (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            message_id TEXT NOT NULL,
            email TEXT NOT NULL,
            type TEXT NOT NULL,
            FOREIGN KEY(message_id) REFERENCES messages(id) ON DELETE CASCADE
        );`,
		`CREATE INDEX IF NOT EXISTS idx_recipients_message ON recipients(message_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created_id ON messages(created_at, id);`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertMessage(ctx context.Context, message Message, recipients []Recipient) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO messages
        (id, from_email, reply_to, subject, text_body, raw, raw_size, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		message.ID,
		message.From,
		message.ReplyTo,
		message.Subject,
		message.TextBody,
		message.Raw,
		message.RawSize,
		message.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	for _, recipient := range recipients {
		_, err = tx.ExecContext(ctx, `INSERT INTO recipients (message_id, email, type)
            VALUES (?, ?, ?);`, message.ID, recipient.Email, recipient.Type)
		if err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message: %w", err)
	}
	return nil
}

// ListMessages returns captured messages newest first along with the total count.
func (s *Store) ListMessages(ctx context.Context, offset, limit int32) ([]MessageSummary, int32, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	var total int32
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages;`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, from_email, reply_to, subject, created_at
        FROM messages ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?;`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []MessageSummary
	var ids []string
	for rows.Next() {
		var summary MessageSummary
		var createdAt int64
		if err := rows.Scan(&summary.ID, &summary.From, &summary.ReplyTo, &summary.Subject, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		summary.CreatedAt = time.Unix(0, createdAt)
		messages = append(messages, summary)
		ids = append(ids, summary.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	if len(ids) == 0 {
		return messages, total, nil
	}

	recipients, err := s.listRecipients(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range messages {
		messages[i].To = recipients[messages[i].ID]["to"]
	}
	return messages, total, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (Message, []Recipient, error) {
	var message Message
	var createdAt int64
	row := s.db.QueryRowContext(ctx, `SELECT id, from_email, reply_to, subject, text_body, raw, raw_size, created_at
        FROM messages WHERE id = ?;`, id)
	if err := row.Scan(
		&message.ID,
		&message.From,
		&message.ReplyTo,
		&message.Subject,
		&message.TextBody,
		&message.Raw,
		&message.RawSize,
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, nil, ErrNotFound
		}
		return Message{}, nil, fmt.Errorf("get message: %w", err)
	}
	message.CreatedAt = time.Unix(0, createdAt)

	recipients, err := s.getRecipients(ctx, id)
	if err != nil {
		return Message{}, nil, err
	}
	return message, recipients, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?;`, id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return rows > 0, nil
}

func (s *Store) getRecipients(ctx context.Context, messageID string) ([]Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, type FROM recipients WHERE message_id = ? ORDER BY id;`, messageID)
	if err != nil {
		return nil, fmt.Errorf("get recipients: %w", err)
	}
	defer rows.Close()

	var recipients []Recipient
	for rows.Next() {
		var recipient Recipient
		if err := rows.Scan(&recipient.Email, &recipient.Type); err != nil {
			return nil, fmt.Errorf("get recipients: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get recipients: %w", err)
	}
	return recipients, nil
}

func (s *Store) listRecipients(ctx context.Context, messageIDs []string) (map[string]map[string][]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageIDs)), ",")
	query := fmt.Sprintf(`SELECT message_id, email, type FROM recipients WHERE message_id IN (%s) ORDER BY id;`, placeholders)

	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	result := make(map[string]map[string][]string)
	for rows.Next() {
		var messageID, email, rtype string
		if err := rows.Scan(&messageID, &email, &rtype); err != nil {
			return nil, fmt.Errorf("list recipients: %w", err)
		}
		if _, ok := result[messageID]; !ok {
			result[messageID] = map[string][]string{}
		}
		result[messageID][rtype] = append(result[messageID][rtype], email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	return result, nil
}
