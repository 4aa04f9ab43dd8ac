package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort    int
	LogLevel    string
	ContentPath string
	Mail        Mail
	Sink        Sink
	Roles       Roles
	Form        Form
}

// Mail is the outbound SMTP account the contact relay delivers through.
type Mail struct {
	Host     string
	Port     int
	Username string
	Password string
	Secure   bool
	To       string
	Timeout  time.Duration

	// Plaintext skips TLS altogether. Only the local capture sink sets it;
	// any other host without Secure must offer STARTTLS.
	Plaintext bool
}

// Configured reports whether every setting the relay needs is present.
func (m Mail) Configured() bool {
	return m.Host != "" && m.Port > 0 && m.Username != "" && m.Password != "" && m.To != ""
}

// Sink is the local capture SMTP server used during development.
type Sink struct {
	Enabled     bool
	Port        int
	DBPath      string
	Username    string
	Password    string
	TLSCertFile string
	TLSKeyFile  string
}

func (s Sink) AuthEnabled() bool {
	return s.Username != "" && s.Password != ""
}

// TLSEnabled reports whether the sink should offer STARTTLS.
func (s Sink) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

const (
	sinkSender    = "portfolio@localhost"
	sinkRecipient = "inbox@localhost"
)

// SinkMail is a plaintext Mail account that delivers to the local sink.
// Without sink credentials it uses placeholders; the sink then offers no AUTH
// and the mailer skips it.
func (c Config) SinkMail() Mail {
	mail := Mail{
		Host:      "127.0.0.1",
		Port:      c.Sink.Port,
		Username:  sinkSender,
		Password:  "sink",
		Plaintext: true,
		To:        sinkRecipient,
		Timeout:   c.Mail.Timeout,
	}
	if c.Sink.AuthEnabled() {
		mail.Username = c.Sink.Username
		mail.Password = c.Sink.Password
	}
	if c.Mail.To != "" {
		mail.To = c.Mail.To
	}
	return mail
}

type Roles struct {
	Interval   time.Duration
	Transition time.Duration
}

type Form struct {
	RelayURL   string
	ResetDelay time.Duration
}

func Load() Config {
	httpPort := getEnvInt("HTTP_PORT", 3000)
	return Config{
		HTTPPort:    httpPort,
		LogLevel:    getEnvString("LOG_LEVEL", "info"),
		ContentPath: getEnvString("CONTENT_PATH", ""),
		Mail: Mail{
			Host:     getEnvString("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 0),
			Username: getEnvString("SMTP_USER", ""),
			Password: getEnvString("SMTP_PASS", ""),
			Secure:   os.Getenv("SMTP_SECURE") == "true",
			To:       getEnvString("CONTACT_TO", ""),
			Timeout:  getEnvSeconds("SMTP_TIMEOUT_SECONDS", 15*time.Second),
		},
		Sink: Sink{
			Enabled:     getEnvBool("SINK_ENABLED", false),
			Port:        getEnvInt("SINK_PORT", 2025),
			DBPath:      getEnvString("SINK_DB_PATH", ""),
			Username:    getEnvString("SINK_USERNAME", ""),
			Password:    getEnvString("SINK_PASSWORD", ""),
			TLSCertFile: getEnvString("SINK_TLS_CERT", ""),
			TLSKeyFile:  getEnvString("SINK_TLS_KEY", ""),
		},
		Roles: Roles{
			Interval:   getEnvMillis("ROLE_INTERVAL_MS", 2000*time.Millisecond),
			Transition: getEnvMillis("ROLE_TRANSITION_MS", 600*time.Millisecond),
		},
		Form: Form{
			RelayURL:   getEnvString("RELAY_URL", "http://127.0.0.1:"+strconv.Itoa(httpPort)+"/api/contact"),
			ResetDelay: getEnvMillis("FORM_RESET_MS", 3000*time.Millisecond),
		},
	}
}

func getEnvString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	if ms := getEnvInt(key, -1); ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	if s := getEnvInt(key, -1); s > 0 {
		return time.Duration(s) * time.Second
	}
	return fallback
}
