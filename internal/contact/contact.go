// Package contact holds the contact-form submission shared by the relay and
// the form controller, and the JSON result the relay answers with.
package contact

import "strings"

// Fields lists the required submission keys in canonical order.
var Fields = []string{"name", "email", "subject", "message"}

type Submission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// FromPayload reads a decoded JSON object. Values that are not strings are
// treated as absent.
func FromPayload(payload map[string]any) Submission {
	str := func(key string) string {
		value, _ := payload[key].(string)
		return value
	}
	return Submission{
		Name:    str("name"),
		Email:   str("email"),
		Subject: str("subject"),
		Message: str("message"),
	}
}

func (s Submission) value(field string) string {
	switch field {
	case "name":
		return s.Name
	case "email":
		return s.Email
	case "subject":
		return s.Subject
	case "message":
		return s.Message
	}
	return ""
}

// Missing returns the required fields that are blank after trimming, in
// canonical order.
func (s Submission) Missing() []string {
	var missing []string
	for _, field := range Fields {
		if strings.TrimSpace(s.value(field)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Result is the relay response body: either {"ok":true} or {"error":"..."}.
type Result struct {
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

func Success() Result {
	return Result{OK: true}
}

func Failure(message string) Result {
	return Result{Error: message}
}
