// Package relay implements the contact endpoint: it validates a JSON
// submission and forwards it as one email through an SMTP transport.
package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.io/infrasutra/portfolio/internal/config"
	"github.io/infrasutra/portfolio/internal/contact"
	"github.io/infrasutra/portfolio/internal/mailer"
)

const (
	SenderName    = "Portfolio Contact"
	SubjectPrefix = "[Portfolio] "

	maxBodyBytes = 64 << 10
)

const (
	errMethodNotAllowed = "Method not allowed"
	errInvalidJSON      = "Invalid JSON payload"
	errNotConfigured    = "Email service not configured"
	errSendFailed       = "Failed to send message"
)

// SenderFactory builds a transport bound to one SMTP account.
type SenderFactory func(config.Mail) mailer.Sender

type Handler struct {
	mail      config.Mail
	newSender SenderFactory
	logger    *slog.Logger
}

func NewHandler(mail config.Mail, newSender SenderFactory, logger *slog.Logger) *Handler {
	if newSender == nil {
		newSender = mailer.New
	}
	return &Handler{mail: mail, newSender: newSender, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		h.respond(w, http.StatusOK, contact.Success())
		return
	case http.MethodPost:
	default:
		h.respond(w, http.StatusMethodNotAllowed, contact.Failure(errMethodNotAllowed))
		return
	}

	submission, ok := decodeSubmission(w, r)
	if !ok {
		h.respond(w, http.StatusBadRequest, contact.Failure(errInvalidJSON))
		return
	}
	if missing := submission.Missing(); len(missing) > 0 {
		h.respond(w, http.StatusBadRequest, contact.Failure("Missing required fields: "+strings.Join(missing, ", ")))
		return
	}
	if !h.mail.Configured() {
		h.logger.Error("contact relay not configured")
		h.respond(w, http.StatusInternalServerError, contact.Failure(errNotConfigured))
		return
	}

	sender := h.newSender(h.mail)
	if err := sender.Send(r.Context(), BuildMessage(h.mail, submission)); err != nil {
		h.logger.Error("send contact email", "error", err)
		h.respond(w, http.StatusBadGateway, contact.Failure(errSendFailed))
		return
	}
	h.logger.Info("contact email sent", "subject", submission.Subject)
	h.respond(w, http.StatusOK, contact.Success())
}

// decodeSubmission reads a JSON object body. An empty body counts as {}.
func decodeSubmission(w http.ResponseWriter, r *http.Request) (contact.Submission, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return contact.Submission{}, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return contact.Submission{}, true
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		return contact.Submission{}, false
	}
	return contact.FromPayload(payload), true
}

// BuildMessage lays out the notification email for a submission.
func BuildMessage(mail config.Mail, s contact.Submission) mailer.Message {
	return mailer.Message{
		From:    mailer.Address{Name: SenderName, Address: mail.Username},
		To:      mailer.Address{Address: mail.To},
		ReplyTo: mailer.Address{Name: s.Name, Address: s.Email},
		Subject: SubjectPrefix + s.Subject,
		Text:    fmt.Sprintf("Name: %s\nEmail: %s\nSubject: %s\n\n%s", s.Name, s.Email, s.Subject, s.Message),
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, result contact.Result) {
	header := w.Header()
	header.Set("Content-Type", "application/json")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}
