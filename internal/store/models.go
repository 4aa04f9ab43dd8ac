package store

import "time"

// Message is a mail captured by the local sink.
type Message struct {
	ID        string
	From      string
	ReplyTo   string
	Subject   string
	TextBody  string
	Raw       []byte
	RawSize   int64
	CreatedAt time.Time
}

type Recipient struct {
	Email string
	Type  string
}

type MessageSummary struct {
	ID        string
	From      string
	ReplyTo   string
	Subject   string
	CreatedAt time.Time
	To        []string
}
