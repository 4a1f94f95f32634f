// Package chat drives a conversation with a browser-hosted chat
// application through the remote debugging endpoint: it resolves the
// chat tab, injects the user's text, triggers the send control and polls
// the page until the streamed reply stabilizes.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jaytaylor/html2text"
	"go.uber.org/zap"

	"orcabridge/pkg/cdp"
	"orcabridge/pkg/config"
	"orcabridge/pkg/markdown"
)

// Outcome classifies a finished send.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeFailure Outcome = "failure"
)

// Result is the terminal value of one send. A timeout still carries the
// last observed partial text and images; a failure carries only a
// reason.
type Result struct {
	Outcome  Outcome          `json:"outcome"`
	Response string           `json:"response,omitempty"`
	Images   []markdown.Image `json:"images,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// Messages is a no-wait snapshot of the conversation.
type Messages struct {
	User      []string `json:"user"`
	Assistant []string `json:"assistant"`
}

// Status reports which tab the driver would talk to.
type Status struct {
	Connected bool   `json:"connected"`
	Title     string `json:"title,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Endpoint is the slice of the debugging client the driver needs.
// *cdp.Client satisfies it; tests substitute scripted fakes.
type Endpoint interface {
	ListTabs(ctx context.Context) ([]cdp.Tab, error)
	Evaluate(ctx context.Context, wsURL, expression string) (json.RawMessage, error)
}

// SendOptions tunes one send call.
type SendOptions struct {
	// WaitForReply blocks until the reply stabilizes or the budget runs
	// out. When false, Send returns right after the send control fires.
	WaitForReply bool

	// Timeout bounds the reply wait. Zero uses the configured default.
	Timeout time.Duration
}

// Driver runs the send/observe loop. It is synchronous: Send does not
// return until the reply is stable, timed out or failed, and a second
// Send while one is in flight fails immediately instead of interleaving
// evaluates on the same tab.
type Driver struct {
	endpoint Endpoint
	cfg      config.ChatConfig
	clock    Clock
	log      *zap.Logger

	mu sync.Mutex
}

// Option customizes a Driver.
type Option func(*Driver)

// WithClock substitutes the poll-loop clock.
func WithClock(c Clock) Option {
	return func(d *Driver) { d.clock = c }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// NewDriver creates a driver for one chat application.
func NewDriver(endpoint Endpoint, cfg config.ChatConfig, opts ...Option) *Driver {
	d := &Driver{
		endpoint: endpoint,
		cfg:      cfg,
		clock:    SystemClock(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve finds the chat tab. A tab with an open conversation is
// preferred over one that merely sits on the application's base URL,
// regardless of listing order. Not-found is reported, never retried;
// retry policy belongs to the caller.
func (d *Driver) Resolve(ctx context.Context) (cdp.Tab, error) {
	tabs, err := d.endpoint.ListTabs(ctx)
	if err != nil {
		return cdp.Tab{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	tab, ok := cdp.FindTab(tabs,
		func(t cdp.Tab) bool { return t.IsPage() && strings.Contains(t.URL, d.cfg.ConversationURL) },
		func(t cdp.Tab) bool { return t.IsPage() && strings.Contains(t.URL, d.cfg.BaseURL) },
	)
	if !ok {
		return cdp.Tab{}, fmt.Errorf("%w: no open tab matches %q", ErrTargetNotFound, d.cfg.BaseURL)
	}
	return tab, nil
}

// Send submits text to the chat and, unless opts.WaitForReply is false,
// polls until the reply stabilizes. All failures come back as values on
// the Result; Send does not panic and does not return an error.
func (d *Driver) Send(ctx context.Context, text string, opts SendOptions) Result {
	if !d.mu.TryLock() {
		return Result{Outcome: OutcomeFailure, Reason: ErrBusy.Error()}
	}
	defer d.mu.Unlock()

	tab, err := d.Resolve(ctx)
	if err != nil {
		return Result{Outcome: OutcomeFailure, Reason: err.Error()}
	}
	d.log.Debug("resolved chat tab", zap.String("url", tab.URL), zap.String("title", tab.Title))

	baseline := d.assistantCount(ctx, tab)

	if err := d.runControlScript(ctx, tab, submitScript(d.cfg, text)); err != nil {
		return Result{Outcome: OutcomeFailure, Reason: fmt.Sprintf("submit: %v", err)}
	}
	d.clock.Sleep(d.cfg.SendDelay())
	if err := d.runControlScript(ctx, tab, sendScript(d.cfg)); err != nil {
		return Result{Outcome: OutcomeFailure, Reason: fmt.Sprintf("send: %v", err)}
	}

	if !opts.WaitForReply {
		return Result{Outcome: OutcomeSuccess}
	}
	return d.awaitReply(ctx, tab, baseline, opts.Timeout)
}

// assistantCount reads the number of assistant messages before the send.
// A failed read falls back to zero: the stabilizer then only requires
// the count to grow past zero, which matches a page we could not sample.
func (d *Driver) assistantCount(ctx context.Context, tab cdp.Tab) int {
	raw, err := d.endpoint.Evaluate(ctx, tab.WebSocketDebuggerURL, countScript(d.cfg))
	if err != nil || raw == nil {
		d.log.Debug("assistant count unavailable", zap.Error(err))
		return 0
	}
	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0
	}
	return count
}

// controlStatus is the return shape of the submit and send scripts.
type controlStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// runControlScript evaluates a script that manipulates one page element.
// A script-reported error means the page layout does not match and is
// terminal for this send.
func (d *Driver) runControlScript(ctx context.Context, tab cdp.Tab, script string) error {
	raw, err := d.endpoint.Evaluate(ctx, tab.WebSocketDebuggerURL, script)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if raw == nil {
		return fmt.Errorf("%w: script returned nothing", ErrTransport)
	}
	var status controlStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("%w: unexpected script result %s", ErrTransport, raw)
	}
	if status.Error != "" {
		return fmt.Errorf("%w: %s", ErrElementNotFound, status.Error)
	}
	return nil
}

// awaitReply is the polling state. Each tick sleeps, samples the newest
// assistant message and feeds the stabilizer. A failed tick is transient:
// the next tick is still attempted until the budget is exhausted.
func (d *Driver) awaitReply(ctx context.Context, tab cdp.Tab, baseline int, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = d.cfg.Timeout()
	}
	interval := d.cfg.PollInterval()
	ticks := int(timeout / interval)
	if ticks < 1 {
		ticks = 1
	}

	st := NewStabilizer(baseline, d.cfg.StableThreshold)
	script := observeScript(d.cfg)

	for tick := 0; tick < ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return partialResult(OutcomeFailure, st.Last(), err.Error())
		}
		d.clock.Sleep(interval)

		sample, err := d.observe(ctx, tab, script)
		if err != nil {
			d.log.Debug("poll tick failed", zap.Int("tick", tick), zap.Error(err))
			continue
		}
		if st.Observe(sample) {
			return partialResult(OutcomeSuccess, st.Last(), "")
		}
	}
	return partialResult(OutcomeTimeout, st.Last(),
		fmt.Sprintf("%s within %s", ErrTimeout.Error(), timeout))
}

// observe runs the extraction script and processes the captured HTML
// body host-side: markdown conversion so structural markup survives, and
// image extraction from the same fragment.
func (d *Driver) observe(ctx context.Context, tab cdp.Tab, script string) (Sample, error) {
	raw, err := d.endpoint.Evaluate(ctx, tab.WebSocketDebuggerURL, script)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if raw == nil {
		return Sample{}, fmt.Errorf("%w: empty observation", ErrTransport)
	}
	var obs struct {
		Count int    `json:"count"`
		HTML  string `json:"html"`
	}
	if err := json.Unmarshal(raw, &obs); err != nil {
		return Sample{}, fmt.Errorf("decode observation: %w", err)
	}
	text, err := markdown.Convert(obs.HTML)
	if err != nil {
		return Sample{}, fmt.Errorf("convert observation: %w", err)
	}
	return Sample{Count: obs.Count, Text: text, Images: markdown.Images(obs.HTML)}, nil
}

func partialResult(outcome Outcome, last Sample, reason string) Result {
	return Result{
		Outcome:  outcome,
		Response: markdown.AppendImages(last.Text, last.Images),
		Images:   last.Images,
		Reason:   reason,
	}
}

// Messages snapshots the conversation without waiting.
func (d *Driver) Messages(ctx context.Context) (Messages, error) {
	tab, err := d.Resolve(ctx)
	if err != nil {
		return Messages{}, err
	}
	raw, err := d.endpoint.Evaluate(ctx, tab.WebSocketDebuggerURL, messagesScript(d.cfg))
	if err != nil {
		return Messages{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	var msgs Messages
	if raw != nil {
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return Messages{}, fmt.Errorf("decode messages: %w", err)
		}
	}
	return msgs, nil
}

// Status reports the resolved tab. A not-found resolution is a valid
// status, not an error.
func (d *Driver) Status(ctx context.Context) (Status, error) {
	tab, err := d.Resolve(ctx)
	if errors.Is(err, ErrTargetNotFound) {
		return Status{Connected: false}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{Connected: true, Title: tab.Title, URL: tab.URL}, nil
}

// Page dumps the current tab as plain text, for a quick look at what the
// page actually shows.
func (d *Driver) Page(ctx context.Context) (string, error) {
	tab, err := d.Resolve(ctx)
	if err != nil {
		return "", err
	}
	raw, err := d.endpoint.Evaluate(ctx, tab.WebSocketDebuggerURL, pageScript)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	var page string
	if raw == nil {
		return "", nil
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return "", fmt.Errorf("decode page: %w", err)
	}
	text, err := html2text.FromString(page)
	if err != nil {
		return "", fmt.Errorf("convert page: %w", err)
	}
	return text, nil
}
