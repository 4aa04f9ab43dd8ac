package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_PORT", "SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASS", "SMTP_SECURE",
		"CONTACT_TO", "SINK_ENABLED", "ROLE_INTERVAL_MS", "FORM_RESET_MS", "RELAY_URL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 3000, cfg.HTTPPort)
	assert.False(t, cfg.Mail.Configured())
	assert.False(t, cfg.Sink.Enabled)
	assert.Equal(t, 2025, cfg.Sink.Port)
	assert.Equal(t, 2*time.Second, cfg.Roles.Interval)
	assert.Equal(t, 600*time.Millisecond, cfg.Roles.Transition)
	assert.Equal(t, 3*time.Second, cfg.Form.ResetDelay)
	assert.Equal(t, "http://127.0.0.1:3000/api/contact", cfg.Form.RelayURL)
}

func TestLoadMail(t *testing.T) {
	t.Setenv("SMTP_HOST", " smtp.example.com ")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "me@example.com")
	t.Setenv("SMTP_PASS", "secret")
	t.Setenv("SMTP_SECURE", "true")
	t.Setenv("CONTACT_TO", "inbox@example.com")

	mail := Load().Mail

	assert.True(t, mail.Configured())
	assert.Equal(t, "smtp.example.com", mail.Host)
	assert.Equal(t, 465, mail.Port)
	assert.True(t, mail.Secure)
	assert.False(t, mail.Plaintext)
}

func TestSecureFlagOnlyLiteralTrue(t *testing.T) {
	for _, value := range []string{"1", "TRUE", " true ", "true\n", "yes"} {
		t.Setenv("SMTP_SECURE", value)
		assert.False(t, Load().Mail.Secure, "%q", value)
	}
	t.Setenv("SMTP_SECURE", "true")
	assert.True(t, Load().Mail.Secure)
}

func TestSinkTLSNeedsCertAndKey(t *testing.T) {
	t.Setenv("SINK_TLS_CERT", "/etc/sink/cert.pem")
	t.Setenv("SINK_TLS_KEY", "")
	assert.False(t, Load().Sink.TLSEnabled())

	t.Setenv("SINK_TLS_KEY", "/etc/sink/key.pem")
	assert.True(t, Load().Sink.TLSEnabled())
}

func TestMailConfiguredRequiresEveryField(t *testing.T) {
	full := Mail{Host: "h", Port: 25, Username: "u", Password: "p", To: "t"}
	assert.True(t, full.Configured())

	for name, mutate := range map[string]func(*Mail){
		"host":     func(m *Mail) { m.Host = "" },
		"port":     func(m *Mail) { m.Port = 0 },
		"user":     func(m *Mail) { m.Username = "" },
		"password": func(m *Mail) { m.Password = "" },
		"to":       func(m *Mail) { m.To = "" },
	} {
		m := full
		mutate(&m)
		assert.False(t, m.Configured(), name)
	}
}

func TestSinkMail(t *testing.T) {
	cfg := Config{
		Mail: Mail{Timeout: 5 * time.Second},
		Sink: Sink{Enabled: true, Port: 2525},
	}

	mail := cfg.SinkMail()
	assert.True(t, mail.Configured())
	assert.Equal(t, "127.0.0.1", mail.Host)
	assert.Equal(t, 2525, mail.Port)
	assert.Equal(t, "inbox@localhost", mail.To)
	assert.Equal(t, 5*time.Second, mail.Timeout)
	assert.False(t, mail.Secure)
	assert.True(t, mail.Plaintext)

	cfg.Sink.Username, cfg.Sink.Password = "dev", "devpass"
	cfg.Mail.To = "me@example.com"
	mail = cfg.SinkMail()
	assert.Equal(t, "dev", mail.Username)
	assert.Equal(t, "devpass", mail.Password)
	assert.Equal(t, "me@example.com", mail.To)
}
