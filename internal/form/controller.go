// Package form drives the contact form lifecycle:
// idle → sending → success | error → idle.
package form

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.io/infrasutra/portfolio/internal/contact"
)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseSending Phase = "sending"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

const (
	DefaultSubmitLabel = "Send Message"
	LabelSending       = "Sending..."
	LabelSuccess       = "Message Sent! ✨"
	LabelRetry         = "Try Again"

	StyleSuccess = "success"
	StyleError   = "error"

	MessageSuccess  = "Thank you! Your message has been sent."
	MessageFallback = "Something went wrong. Please try again later."

	DefaultResetDelay = 3 * time.Second
)

var (
	ErrBusy   = errors.New("form: a submission is already in progress")
	ErrClosed = errors.New("form: controller closed")
)

// Status is the inline message element under the form.
type Status struct {
	Text string
	Kind string
}

// Snapshot is everything observable about the form at one instant.
type Snapshot struct {
	Phase          Phase
	Fields         contact.Submission
	SubmitLabel    string
	SubmitStyle    string
	SubmitDisabled bool
	// Status stays nil until the first submit creates it.
	Status *Status
}

type Option func(*Controller)

func WithResetDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.resetDelay = d
		}
	}
}

func WithSubmitLabel(label string) Option {
	return func(c *Controller) {
		if label != "" {
			c.label = label
		}
	}
}

// WithObserver registers fn to receive a snapshot after every change. It is
// called outside the controller's lock.
func WithObserver(fn func(Snapshot)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

type Controller struct {
	relay      Relay
	resetDelay time.Duration
	label      string
	observer   func(Snapshot)

	mu     sync.Mutex
	state  Snapshot
	timer  *time.Timer
	closed bool
}

func NewController(relay Relay, opts ...Option) *Controller {
	c := &Controller{
		relay:      relay,
		resetDelay: DefaultResetDelay,
		label:      DefaultSubmitLabel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = Snapshot{Phase: PhaseIdle, SubmitLabel: c.label}
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := c.state
	if c.state.Status != nil {
		status := *c.state.Status
		snap.Status = &status
	}
	return snap
}

// SetField updates one input by its form name.
func (c *Controller) SetField(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fields := &c.state.Fields
	switch name {
	case "name":
		fields.Name = value
	case "email":
		fields.Email = value
	case "subject":
		fields.Subject = value
	case "message":
		fields.Message = value
	default:
		return fmt.Errorf("form: unknown field %q", name)
	}
	return nil
}

func (c *Controller) Fill(s contact.Submission) {
	c.mu.Lock()
	c.state.Fields = s
	c.mu.Unlock()
}

// Submit posts the current fields once. Relay failures are not returned as
// errors; they show up in the snapshot's status. The only errors are ErrBusy
// while the submit control is disabled and ErrClosed.
func (c *Controller) Submit(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrClosed
	}
	if c.state.SubmitDisabled {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrBusy
	}
	submission := c.state.Fields
	if c.state.Status == nil {
		c.state.Status = &Status{}
	}
	*c.state.Status = Status{}
	c.state.Phase = PhaseSending
	c.state.SubmitLabel = LabelSending
	c.state.SubmitStyle = ""
	c.state.SubmitDisabled = true
	sending := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(sending)

	resp, err := c.relay.Submit(ctx, submission)

	c.mu.Lock()
	if err == nil && resp.Succeeded() {
		c.state.Fields = contact.Submission{}
		c.state.Phase = PhaseSuccess
		*c.state.Status = Status{Text: MessageSuccess, Kind: StyleSuccess}
		c.state.SubmitLabel = LabelSuccess
		c.state.SubmitStyle = StyleSuccess
	} else {
		c.state.Phase = PhaseError
		*c.state.Status = Status{Text: failureMessage(resp, err), Kind: StyleError}
		c.state.SubmitLabel = LabelRetry
		c.state.SubmitStyle = StyleError
	}
	if !c.closed {
		c.timer = time.AfterFunc(c.resetDelay, c.restore)
	}
	settled := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(settled)
	return settled, nil
}

func failureMessage(resp Response, err error) string {
	if err == nil && resp.Result.Error != "" {
		return resp.Result.Error
	}
	return MessageFallback
}

// restore puts the submit control back to its original label and style and
// re-enables it. The status message is left in place.
func (c *Controller) restore() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state.Phase = PhaseIdle
	c.state.SubmitLabel = c.label
	c.state.SubmitStyle = ""
	c.state.SubmitDisabled = false
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// Close stops a pending restore timer. Later submits return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) notify(snap Snapshot) {
	if c.observer != nil {
		c.observer(snap)
	}
}
