// Package smtpserver runs the local capture sink: an SMTP server that accepts
// whatever the contact relay sends in development and stores it for review.
package smtpserver

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.io/infrasutra/portfolio/internal/sse"
	"github.io/infrasutra/portfolio/internal/store"
)

const (
	defaultDomain = "portfolio.local"
)

type AuthConfig struct {
	Enabled  bool
	Username string
	Password string
}

type Server struct {
	smtp   *smtp.Server
	logger *slog.Logger
}

func New(store *store.Store, hub *sse.Hub, logger *slog.Logger, addr string, authCfg AuthConfig) *Server {
	backend := &backend{
		store:  store,
		hub:    hub,
		logger: logger,
		auth:   authCfg,
	}
	server := smtp.NewServer(backend)
	server.Addr = addr
	server.Domain = defaultDomain
	server.AllowInsecureAuth = true
	server.ReadTimeout = 15 * time.Second
	server.WriteTimeout = 15 * time.Second
	server.MaxRecipients = 10
	server.MaxMessageBytes = 1 << 20

	return &Server{smtp: server, logger: logger}
}

// SetTLSConfig makes the sink advertise STARTTLS. Call it before serving.
func (s *Server) SetTLSConfig(tlsConfig *tls.Config) {
	s.smtp.TLSConfig = tlsConfig
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("capture sink listening", "addr", s.smtp.Addr)
	return s.smtp.ListenAndServe()
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("capture sink listening", "addr", l.Addr().String())
	return s.smtp.Serve(l)
}

func (s *Server) Close() error {
	return s.smtp.Close()
}

type backend struct {
	store  *store.Store
	hub    *sse.Hub
	logger *slog.Logger
	auth   AuthConfig
}

func (b *backend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &session{backend: b}, nil
}

type session struct {
	backend       *backend
	from          string
	to            []string
	authenticated bool
}

func (s *session) AuthMechanisms() []string {
	if s.backend.auth.Enabled {
		return []string{sasl.Plain}
	}
	return nil
}

func (s *session) Auth(mech string) (sasl.Server, error) {
	if !s.backend.auth.Enabled {
		return nil, errors.New("authentication not enabled")
	}
	if mech != sasl.Plain {
		return nil, errors.New("unsupported authentication mechanism")
	}
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if username == s.backend.auth.Username && password == s.backend.auth.Password {
			s.authenticated = true
			return nil
		}
		return errors.New("invalid credentials")
	}), nil
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	if s.backend.auth.Enabled && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.from = normalizeEmail(from)
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.auth.Enabled && !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.to = append(s.to, normalizeEmail(to))
	return nil
}

func (s *session) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	message, recipients, err := parseMessage(s.from, s.to, data, time.Now())
	if err != nil {
		s.backend.logger.Warn("parse captured message", "error", err)
	}

	ctx := context.Background()
	if err := s.backend.store.InsertMessage(ctx, message, recipients); err != nil {
		s.backend.logger.Error("store captured message", "error", err)
		return err
	}
	s.backend.logger.Info("captured message", "id", message.ID, "reply_to", message.ReplyTo, "subject", message.Subject)

	if _, err := s.backend.hub.Publish(audience(recipients), buildEvent(message, recipients)); err != nil {
		s.backend.logger.Warn("publish captured message", "error", err)
	}
	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}

// parseMessage extracts the headers and text body the inbox views need. A
// parse error still yields a storable message built from the envelope.
func parseMessage(envelopeFrom string, envelopeTo []string, raw []byte, now time.Time) (store.Message, []store.Recipient, error) {
	message := store.Message{
		ID:        uuid.NewString(),
		From:      normalizeEmail(envelopeFrom),
		Raw:       raw,
		RawSize:   int64(len(raw)),
		CreatedAt: now,
	}
	recipients := newRecipientSet()
	for _, addr := range envelopeTo {
		recipients.add("to", addr)
	}

	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return message, recipients.list(), err
	}

	if subject, err := reader.Header.Subject(); err == nil {
		message.Subject = subject
	}
	if message.From == "" {
		if fromList, err := reader.Header.AddressList("From"); err == nil && len(fromList) > 0 {
			message.From = normalizeEmail(fromList[0].Address)
		}
	}
	if replyTo, err := reader.Header.AddressList("Reply-To"); err == nil && len(replyTo) > 0 {
		message.ReplyTo = formatAddress(replyTo[0])
	}
	for _, field := range []struct{ header, rtype string }{{"To", "to"}, {"Cc", "cc"}} {
		if list, err := reader.Header.AddressList(field.header); err == nil {
			for _, addr := range list {
				recipients.add(field.rtype, addr.Address)
			}
		}
	}

	var text []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return message, recipients.list(), err
		}
		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, _ := header.ContentType()
		if mediaType != "" && !strings.HasPrefix(mediaType, "text/plain") {
			continue
		}
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		text = append(text, strings.ReplaceAll(string(body), "\r\n", "\n"))
	}
	message.TextBody = strings.Join(text, "\n")
	return message, recipients.list(), nil
}

func formatAddress(addr *mail.Address) string {
	if addr.Name == "" {
		return addr.Address
	}
	return addr.Name + " <" + addr.Address + ">"
}

// recipientSet keeps first-seen order and drops duplicates per type.
type recipientSet struct {
	seen  map[string]struct{}
	items []store.Recipient
}

func newRecipientSet() *recipientSet {
	return &recipientSet{seen: map[string]struct{}{}}
}

func (r *recipientSet) add(rtype, email string) {
	email = normalizeEmail(email)
	if email == "" {
		return
	}
	key := rtype + "|" + email
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	r.items = append(r.items, store.Recipient{Email: email, Type: rtype})
}

func (r *recipientSet) list() []store.Recipient {
	return r.items
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func audience(recipients []store.Recipient) []string {
	addresses := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		addresses = append(addresses, recipient.Email)
	}
	return addresses
}

func buildEvent(message store.Message, recipients []store.Recipient) sse.Event {
	toList := []string{}
	for _, recipient := range recipients {
		if recipient.Type == "to" {
			toList = append(toList, recipient.Email)
		}
	}
	return sse.Event{
		Name: "message",
		Data: map[string]any{
			"id":        message.ID,
			"from":      message.From,
			"replyTo":   message.ReplyTo,
			"subject":   message.Subject,
			"to":        toList,
			"createdAt": message.CreatedAt.UTC().Format(time.RFC3339),
		},
	}
}
