package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.io/infrasutra/portfolio/internal/pagination"
	"github.io/infrasutra/portfolio/internal/store"
)

const streamKeepAlive = 20 * time.Second

type messageSummary struct {
	ID        string   `json:"id"`
	From      string   `json:"from"`
	ReplyTo   string   `json:"replyTo"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	CreatedAt string   `json:"createdAt"`
}

type messageDetail struct {
	ID        string   `json:"id"`
	From      string   `json:"from"`
	ReplyTo   string   `json:"replyTo"`
	To        []string `json:"to"`
	Cc        []string `json:"cc"`
	Subject   string   `json:"subject"`
	Text      string   `json:"text"`
	CreatedAt string   `json:"createdAt"`
	RawSize   int64    `json:"rawSize"`
}

func (s *Server) handleSinkMessages(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromQuery(r.URL.Query())
	messages, total, err := s.sink.Store.ListMessages(r.Context(), params.Offset, params.Limit)
	if err != nil {
		s.logger.Error("list captured messages", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to list messages"})
		return
	}
	summaries := make([]messageSummary, 0, len(messages))
	for _, msg := range messages {
		summaries = append(summaries, toSummary(msg))
	}
	s.respondJSON(w, http.StatusOK, pagination.NewPage(summaries, params, total))
}

func (s *Server) handleSinkMessage(w http.ResponseWriter, r *http.Request) {
	message, recipients, ok := s.loadMessage(w, r)
	if !ok {
		return
	}
	detail := messageDetail{
		ID:        message.ID,
		From:      message.From,
		ReplyTo:   message.ReplyTo,
		To:        []string{},
		Cc:        []string{},
		Subject:   message.Subject,
		Text:      message.TextBody,
		CreatedAt: message.CreatedAt.UTC().Format(time.RFC3339),
		RawSize:   message.RawSize,
	}
	for _, recipient := range recipients {
		if recipient.Type == "cc" {
			detail.Cc = append(detail.Cc, recipient.Email)
		} else {
			detail.To = append(detail.To, recipient.Email)
		}
	}
	s.respondJSON(w, http.StatusOK, detail)
}

func (s *Server) handleSinkRaw(w http.ResponseWriter, r *http.Request) {
	message, _, ok := s.loadMessage(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=message-%s.eml", message.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(message.Raw)
}

func (s *Server) loadMessage(w http.ResponseWriter, r *http.Request) (store.Message, []store.Recipient, bool) {
	message, recipients, err := s.sink.Store.GetMessage(r.Context(), r.PathValue("id"))
	switch {
	case err == nil:
		return message, recipients, true
	case errors.Is(err, context.Canceled):
	case errors.Is(err, store.ErrNotFound):
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Message not found"})
	default:
		s.logger.Error("load captured message", "id", r.PathValue("id"), "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to load message"})
	}
	return store.Message{}, nil, false
}

func (s *Server) handleSinkDelete(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.sink.Store.DeleteMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("delete captured message", "id", r.PathValue("id"), "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Unable to delete message"})
		return
	}
	if !deleted {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Message not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSinkStream pushes a "message" event for each captured mail. The
// optional "to" query narrows the stream to one recipient address.
func (s *Server) handleSinkStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	address := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("to")))
	ch, unsubscribe := s.sink.Hub.Subscribe(address)
	defer unsubscribe()

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(payload)
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		}
	}
}

func toSummary(msg store.MessageSummary) messageSummary {
	to := msg.To
	if to == nil {
		to = []string{}
	}
	return messageSummary{
		ID:        msg.ID,
		From:      msg.From,
		ReplyTo:   msg.ReplyTo,
		To:        to,
		Subject:   msg.Subject,
		CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339),
	}
}
