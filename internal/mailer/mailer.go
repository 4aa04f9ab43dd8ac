// Package mailer composes plain-text messages and delivers them over SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.io/infrasutra/portfolio/internal/config"
)

const messageIDDomain = "portfolio.local"

var ErrNotConfigured = errors.New("smtp transport not configured")

// Sender delivers a single message. Implementations make exactly one
// delivery attempt per call.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Address struct {
	Name    string
	Address string
}

// String renders the address as "Name <address>", or the bare address when
// there is no display name.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Address)
}

type Message struct {
	From    Address
	To      Address
	ReplyTo Address
	Subject string
	Text    string
}

// Compose writes msg as a single-part text/plain RFC 5322 message.
func Compose(w io.Writer, msg Message, now time.Time) error {
	var header mail.Header
	header.SetDate(now)
	header.SetMessageID(uuid.NewString() + "@" + messageIDDomain)
	header.Set("From", formatAddress(toMailAddress(msg.From)))
	header.Set("To", formatAddress(toMailAddress(msg.To)))
	if msg.ReplyTo.Address != "" {
		header.Set("Reply-To", formatAddress(toMailAddress(msg.ReplyTo)))
	}
	header.SetSubject(sanitizeHeader(msg.Subject))
	header.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	body, err := mail.CreateSingleInlineWriter(w, header)
	if err != nil {
		return fmt.Errorf("create message writer: %w", err)
	}
	if _, err := io.WriteString(body, msg.Text); err != nil {
		body.Close()
		return fmt.Errorf("write message body: %w", err)
	}
	return body.Close()
}

func toMailAddress(a Address) *mail.Address {
	return &mail.Address{Name: sanitizeHeader(a.Name), Address: sanitizeHeader(a.Address)}
}

// formatAddress leaves a display name made only of atoms unquoted, so
// "Ada Lovelace <ada@example.com>" goes out as written. Other names get
// go-message's quoting or encoded words.
func formatAddress(a *mail.Address) string {
	if a.Name != "" && isAtomPhrase(a.Name) {
		return a.Name + " " + (&mail.Address{Address: a.Address}).String()
	}
	return a.String()
}

func isAtomPhrase(name string) bool {
	words := strings.Split(name, " ")
	for _, word := range words {
		if word == "" {
			return false
		}
		for _, r := range word {
			if !isAtext(r) {
				return false
			}
		}
	}
	return true
}

// isAtext reports whether r is an RFC 5322 atext character.
func isAtext(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("!#$%&'*+-/=?^_`{|}~", r)
}

func sanitizeHeader(value string) string {
	cleaned := strings.ReplaceAll(value, "\r", "")
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")
	return strings.TrimSpace(cleaned)
}

// SMTPSender is bound to one SMTP account. It opens a fresh connection for
// every message and never retries.
type SMTPSender struct {
	cfg       config.Mail
	tlsConfig *tls.Config
}

type Option func(*SMTPSender)

// WithTLSConfig sets the client TLS settings used for implicit TLS and
// STARTTLS. An empty ServerName is filled with the configured host.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(s *SMTPSender) {
		s.tlsConfig = tlsConfig
	}
}

func NewSMTPSender(cfg config.Mail, opts ...Option) *SMTPSender {
	s := &SMTPSender{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New matches the relay's sender factory signature.
func New(cfg config.Mail) Sender {
	return NewSMTPSender(cfg)
}

func (s *SMTPSender) clientTLSConfig() *tls.Config {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if s.tlsConfig != nil {
		tlsConfig = s.tlsConfig.Clone()
	}
	if tlsConfig.ServerName == "" {
		tlsConfig.ServerName = s.cfg.Host
	}
	return tlsConfig
}

// connect picks the transport up front: implicit TLS when Secure is set,
// plain SMTP for the capture sink, and a mandatory STARTTLS upgrade for any
// other host. The dial and TLS handshake share the configured timeout.
func (s *SMTPSender) connect(ctx context.Context, addr string) (*smtp.Client, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	tlsConfig := s.clientTLSConfig()

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Secure {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if s.cfg.Secure || s.cfg.Plaintext {
		return s.withTimeouts(smtp.NewClient(conn)), nil
	}
	client, err := smtp.NewClientStartTLS(conn, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("starttls: %w", err)
	}
	// The handshake runs on the first write after STARTTLS; greet again now
	// so certificate errors surface here.
	if err := s.withTimeouts(client).Hello("localhost"); err != nil {
		client.Close()
		return nil, fmt.Errorf("starttls: %w", err)
	}
	return client, nil
}

func (s *SMTPSender) withTimeouts(client *smtp.Client) *smtp.Client {
	if s.cfg.Timeout > 0 {
		client.CommandTimeout = s.cfg.Timeout
		client.SubmissionTimeout = s.cfg.Timeout
	}
	return client
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if !s.cfg.Configured() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var raw bytes.Buffer
	if err := Compose(&raw, msg, time.Now()); err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	client, err := s.connect(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if ok, _ := client.Extension("AUTH"); ok {
		if err := client.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(msg.From.Address, nil); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(msg.To.Address, nil); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	data, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := data.Write(raw.Bytes()); err != nil {
		data.Close()
		return fmt.Errorf("write smtp data: %w", err)
	}
	if err := data.Close(); err != nil {
		return fmt.Errorf("finish smtp data: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}
