package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.io/infrasutra/portfolio/internal/config"
	"github.io/infrasutra/portfolio/internal/contact"
	"github.io/infrasutra/portfolio/internal/form"
)

var contactFlags struct {
	submission contact.Submission
	relayURL   string
}

var contactCmd = &cobra.Command{
	Use:   "contact",
	Short: "Submit the contact form to a running relay",
	RunE:  runContact,
}

func init() {
	f := contactCmd.Flags()
	f.StringVar(&contactFlags.submission.Name, "name", "", "sender name")
	f.StringVar(&contactFlags.submission.Email, "email", "", "sender email")
	f.StringVar(&contactFlags.submission.Subject, "subject", "", "message subject")
	f.StringVar(&contactFlags.submission.Message, "message", "", "message body")
	f.StringVar(&contactFlags.relayURL, "url", "", "relay endpoint (default RELAY_URL)")
}

func runContact(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	url := cfg.Form.RelayURL
	if contactFlags.relayURL != "" {
		url = contactFlags.relayURL
	}

	out := cmd.OutOrStdout()
	restored := make(chan struct{})
	var once sync.Once
	controller := form.NewController(form.NewHTTPRelay(url, nil),
		form.WithResetDelay(cfg.Form.ResetDelay),
		form.WithObserver(func(s form.Snapshot) {
			printSnapshot(out, s)
			if s.Phase == form.PhaseIdle {
				once.Do(func() { close(restored) })
			}
		}),
	)
	defer controller.Close()
	controller.Fill(contactFlags.submission)

	result, err := controller.Submit(cmd.Context())
	if err != nil {
		return err
	}

	select {
	case <-restored:
	case <-cmd.Context().Done():
	}
	if result.Phase == form.PhaseError {
		return fmt.Errorf("contact: %s", result.Status.Text)
	}
	return nil
}

func printSnapshot(w io.Writer, s form.Snapshot) {
	status := ""
	if s.Status != nil && s.Status.Text != "" {
		status = fmt.Sprintf(" status=%q(%s)", s.Status.Text, s.Status.Kind)
	}
	fmt.Fprintf(w, "[%s] button=%q disabled=%t%s\n", s.Phase, s.SubmitLabel, s.SubmitDisabled, status)
}
