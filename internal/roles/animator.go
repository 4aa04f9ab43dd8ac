package roles

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultInterval   = 2000 * time.Millisecond
	DefaultTransition = 600 * time.Millisecond
)

// Renderer draws frames. Exit runs on the outgoing frame and Enter on the
// incoming one; both may block for the length of their visual effect.
type Renderer interface {
	Exit(ctx context.Context, from Frame) error
	Show(f Frame)
	Enter(ctx context.Context, to Frame) error
}

// Fade is a Renderer whose exit and enter effects each last Duration.
type Fade struct {
	Duration time.Duration
	Draw     func(Frame)
}

func (f Fade) Exit(ctx context.Context, _ Frame) error {
	return wait(ctx, f.Duration)
}

func (f Fade) Show(frame Frame) {
	if f.Draw != nil {
		f.Draw(frame)
	}
}

func (f Fade) Enter(ctx context.Context, _ Frame) error {
	return wait(ctx, f.Duration)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Option func(*Animator)

func WithInterval(d time.Duration) Option {
	return func(a *Animator) {
		if d > 0 {
			a.interval = d
		}
	}
}

// Animator owns the role cycle state and the timer that advances it.
type Animator struct {
	entries  []Entry
	renderer Renderer
	interval time.Duration

	mu    sync.Mutex
	state State

	transitioning atomic.Bool

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(entries []Entry, renderer Renderer, opts ...Option) (*Animator, error) {
	if len(entries) == 0 {
		return nil, ErrNoEntries
	}
	a := &Animator{
		entries:  append([]Entry(nil), entries...),
		renderer: renderer,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Animator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Animator) Frame() Frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return FrameFor(a.entries, a.state)
}

// Tick runs one transition: exit effect, state advance, enter effect. It
// returns false without doing anything when a transition is already running.
// A cancelled exit effect leaves the state untouched.
func (a *Animator) Tick(ctx context.Context) bool {
	if !a.transitioning.CompareAndSwap(false, true) {
		return false
	}
	defer a.transitioning.Store(false)

	if err := a.renderer.Exit(ctx, a.Frame()); err != nil {
		return true
	}

	a.mu.Lock()
	a.state = a.state.Next(len(a.entries))
	next := FrameFor(a.entries, a.state)
	a.mu.Unlock()

	a.renderer.Show(next)
	_ = a.renderer.Enter(ctx, next)
	return true
}

// Start shows the current frame and begins ticking every interval until Stop
// is called or ctx is done. Calling Start on a running animator is a no-op.
func (a *Animator) Start(ctx context.Context) {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.renderer.Show(a.Frame())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if a.transitioning.Load() {
					continue
				}
				a.wg.Add(1)
				go func() {
					defer a.wg.Done()
					a.Tick(ctx)
				}()
			}
		}
	}()
}

// Stop cancels the timer and waits for a running transition to return.
func (a *Animator) Stop() {
	a.lifecycle.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.lifecycle.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
}
