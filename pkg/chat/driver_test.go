package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orcabridge/pkg/cdp"
	"orcabridge/pkg/config"
	"orcabridge/pkg/markdown"
)

type fakeClock struct {
	sleeps []time.Duration
}

func (c *fakeClock) Sleep(d time.Duration) { c.sleeps = append(c.sleeps, d) }

// gateClock blocks its first Sleep until released, so a test can observe
// a send mid-flight.
type gateClock struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGateClock() *gateClock {
	return &gateClock{entered: make(chan struct{}), release: make(chan struct{})}
}

func (c *gateClock) Sleep(time.Duration) {
	c.once.Do(func() { close(c.entered) })
	<-c.release
}

// fakeEndpoint dispatches evaluates by recognizing the script each driver
// operation generates.
type fakeEndpoint struct {
	tabs    []cdp.Tab
	tabsErr error

	count    json.RawMessage
	submit   func() (json.RawMessage, error)
	send     func() (json.RawMessage, error)
	observe  func(call int) (json.RawMessage, error)
	messages json.RawMessage
	page     json.RawMessage

	observeCalls int
}

var okStatus = json.RawMessage(`{"ok":true}`)

func (f *fakeEndpoint) ListTabs(context.Context) ([]cdp.Tab, error) {
	return f.tabs, f.tabsErr
}

func (f *fakeEndpoint) Evaluate(_ context.Context, _ string, expr string) (json.RawMessage, error) {
	switch {
	case strings.HasSuffix(expr, ".length"):
		return f.count, nil
	case strings.Contains(expr, "replaceChildren"):
		if f.submit != nil {
			return f.submit()
		}
		return okStatus, nil
	case strings.Contains(expr, "btn.click()"):
		if f.send != nil {
			return f.send()
		}
		return okStatus, nil
	case strings.Contains(expr, "msgs[msgs.length - 1]"):
		call := f.observeCalls
		f.observeCalls++
		if f.observe != nil {
			return f.observe(call)
		}
		return nil, errors.New("no observation scripted")
	case strings.Contains(expr, "result.user.push"):
		return f.messages, nil
	case expr == pageScript:
		return f.page, nil
	}
	return nil, fmt.Errorf("unrecognized script: %s", expr)
}

func chatTab() cdp.Tab {
	return cdp.Tab{
		Type:                 "page",
		URL:                  "https://chatgpt.com/c/abc123",
		Title:                "Chat",
		WebSocketDebuggerURL: "ws://127.0.0.1:9222/devtools/page/abc123",
	}
}

func testConfig(timeoutSeconds int) config.ChatConfig {
	cfg := config.Default().Chat
	cfg.TimeoutSeconds = timeoutSeconds
	return cfg
}

func observation(count int, html string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{"count": count, "html": html})
	return b
}

func TestSendWaitsForStableReply(t *testing.T) {
	ep := &fakeEndpoint{
		tabs:  []cdp.Tab{chatTab()},
		count: json.RawMessage(`1`),
		observe: func(call int) (json.RawMessage, error) {
			switch call {
			case 0:
				return observation(1, ""), nil
			case 1:
				return observation(2, "<p>partial</p>"), nil
			default:
				return observation(2, "<p>final answer</p>"), nil
			}
		},
	}
	clock := &fakeClock{}
	d := NewDriver(ep, testConfig(5), WithClock(clock))

	result := d.Send(context.Background(), "hello", SendOptions{WaitForReply: true})

	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "final answer", result.Response)
	assert.Empty(t, result.Reason)
	// Stable at the third identical poll, well inside the ten-tick budget.
	assert.Equal(t, 6, ep.observeCalls)
}

func TestSendTimeoutCarriesPartial(t *testing.T) {
	ep := &fakeEndpoint{
		tabs:  []cdp.Tab{chatTab()},
		count: json.RawMessage(`1`),
		observe: func(call int) (json.RawMessage, error) {
			// Never settles: every poll sees different text.
			return observation(2, fmt.Sprintf("<p>tick %d</p>", call)), nil
		},
	}
	d := NewDriver(ep, testConfig(2), WithClock(&fakeClock{}))

	result := d.Send(context.Background(), "hello", SendOptions{WaitForReply: true})

	assert.Equal(t, OutcomeTimeout, result.Outcome)
	assert.Equal(t, "tick 3", result.Response)
	assert.Contains(t, result.Reason, "did not stabilize")
	// Two seconds at the half-second cadence is four polls.
	assert.Equal(t, 4, ep.observeCalls)
}

func TestSendExtractsImagesFromCapturedHTML(t *testing.T) {
	html := `<p>here you go</p><img src="https://cdn.example/pic.png" alt="chart">`
	ep := &fakeEndpoint{
		tabs:  []cdp.Tab{chatTab()},
		count: json.RawMessage(`1`),
		observe: func(int) (json.RawMessage, error) {
			return observation(2, html), nil
		},
	}
	d := NewDriver(ep, testConfig(5), WithClock(&fakeClock{}))

	result := d.Send(context.Background(), "hello", SendOptions{WaitForReply: true})

	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, []markdown.Image{{Src: "https://cdn.example/pic.png", Alt: "chart"}}, result.Images)
	assert.Contains(t, result.Response, "![chart](https://cdn.example/pic.png)")
}

func TestSendToleratesTransientPollFailures(t *testing.T) {
	ep := &fakeEndpoint{
		tabs:  []cdp.Tab{chatTab()},
		count: json.RawMessage(`1`),
		observe: func(call int) (json.RawMessage, error) {
			if call == 0 {
				return nil, errors.New("websocket hiccup")
			}
			return observation(2, "<p>ok</p>"), nil
		},
	}
	d := NewDriver(ep, testConfig(5), WithClock(&fakeClock{}))

	result := d.Send(context.Background(), "hello", SendOptions{WaitForReply: true})
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "ok", result.Response)
}

func TestSendMissingPromptIsTerminal(t *testing.T) {
	ep := &fakeEndpoint{
		tabs:  []cdp.Tab{chatTab()},
		count: json.RawMessage(`1`),
		submit: func() (json.RawMessage, error) {
			return json.RawMessage(`{"error":"prompt field not found"}`), nil
		},
	}
	d := NewDriver(ep, testConfig(5), WithClock(&fakeClock{}))

	result := d.Send(context.Background(), "hello", SendOptions{WaitForReply: true})
	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.Contains(t, result.Reason, "submit")
	assert.Contains(t, result.Reason, "prompt field not found")
	assert.Zero(t, ep.observeCalls)
}

func TestSendTransportFailureIsTerminal(t *testing.T) {
	ep := &fakeEndpoint{
		tabs:  []cdp.Tab{chatTab()},
		count: json.RawMessage(`1`),
		send: func() (json.RawMessage, error) {
			return nil, errors.New("connection reset")
		},
	}
	d := NewDriver(ep, testConfig(5), WithClock(&fakeClock{}))

	result := d.Send(context.Background(), "hello", SendOptions{WaitForReply: true})
	assert.Equal(t, OutcomeFailure, result.Outcome)
	assert.Contains(t, result.Reason, "send")
	assert.Contains(t, result.Reason, "connection reset")
}

func TestSendNoWaitReturnsAfterClick(t *testing.T) {
	ep := &fakeEndpoint{
		tabs:  []cdp.Tab{chatTab()},
		count: json.RawMessage(`0`),
	}
	d := NewDriver(ep, testConfig(5), WithClock(&fakeClock{}))

	result := d.Send(context.Background(), "hello", SendOptions{WaitForReply: false})
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Empty(t, result.Response)
	assert.Zero(t, ep.observeCalls)
}

func TestSendRejectsConcurrentSends(t *testing.T) {
	ep := &fakeEndpoint{
		tabs:  []cdp.Tab{chatTab()},
		count: json.RawMessage(`1`),
		observe: func(int) (json.RawMessage, error) {
			return observation(2, "<p>done</p>"), nil
		},
	}
	clock := newGateClock()
	d := NewDriver(ep, testConfig(5), WithClock(clock))

	done := make(chan Result, 1)
	go func() {
		done <- d.Send(context.Background(), "first", SendOptions{WaitForReply: true})
	}()

	<-clock.entered
	second := d.Send(context.Background(), "second", SendOptions{WaitForReply: true})
	assert.Equal(t, OutcomeFailure, second.Outcome)
	assert.Equal(t, ErrBusy.Error(), second.Reason)

	close(clock.release)
	first := <-done
	assert.Equal(t, OutcomeSuccess, first.Outcome)
}

func TestResolvePrefersConversationTab(t *testing.T) {
	home := cdp.Tab{Type: "page", URL: "https://chatgpt.com/", WebSocketDebuggerURL: "ws://h"}
	worker := cdp.Tab{Type: "service_worker", URL: "https://chatgpt.com/c/worker", WebSocketDebuggerURL: "ws://w"}
	convo := cdp.Tab{Type: "page", URL: "https://chatgpt.com/c/abc", WebSocketDebuggerURL: "ws://c"}

	ep := &fakeEndpoint{tabs: []cdp.Tab{home, worker, convo}}
	d := NewDriver(ep, testConfig(5))

	tab, err := d.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, convo, tab)
}

func TestResolveFallsBackToBaseURL(t *testing.T) {
	home := cdp.Tab{Type: "page", URL: "https://chatgpt.com/", WebSocketDebuggerURL: "ws://h"}
	ep := &fakeEndpoint{tabs: []cdp.Tab{home}}
	d := NewDriver(ep, testConfig(5))

	tab, err := d.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, home, tab)
}

func TestResolveNotFound(t *testing.T) {
	ep := &fakeEndpoint{tabs: []cdp.Tab{
		{Type: "page", URL: "https://example.com/"},
	}}
	d := NewDriver(ep, testConfig(5))

	_, err := d.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrTargetNotFound)
}

func TestResolveTransportError(t *testing.T) {
	ep := &fakeEndpoint{tabsErr: errors.New("connection refused")}
	d := NewDriver(ep, testConfig(5))

	_, err := d.Resolve(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
}

func TestMessages(t *testing.T) {
	ep := &fakeEndpoint{
		tabs:     []cdp.Tab{chatTab()},
		messages: json.RawMessage(`{"user":["hi"],"assistant":["hello there"]}`),
	}
	d := NewDriver(ep, testConfig(5))

	msgs, err := d.Messages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, msgs.User)
	assert.Equal(t, []string{"hello there"}, msgs.Assistant)
}

func TestStatusDisconnected(t *testing.T) {
	ep := &fakeEndpoint{}
	d := NewDriver(ep, testConfig(5))

	st, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Connected)
}

func TestStatusConnected(t *testing.T) {
	ep := &fakeEndpoint{tabs: []cdp.Tab{chatTab()}}
	d := NewDriver(ep, testConfig(5))

	st, err := d.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "Chat", st.Title)
}

func TestPage(t *testing.T) {
	ep := &fakeEndpoint{
		tabs: []cdp.Tab{chatTab()},
		page: json.RawMessage(`"<html><body><p>Hello page</p></body></html>"`),
	}
	d := NewDriver(ep, testConfig(5))

	text, err := d.Page(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "Hello page")
}
