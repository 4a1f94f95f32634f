// Package cdp is a minimal client for the browser remote debugging
// endpoint: tab discovery over its HTTP directory and script evaluation
// over a per-call websocket channel.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/runtime"
	"github.com/gorilla/websocket"
)

// DefaultBaseURL is the conventional local debugging endpoint.
const DefaultBaseURL = "http://127.0.0.1:9222"

const defaultTimeout = 10 * time.Second

// Tab describes one debuggable page, as reported by GET /json.
type Tab struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	URL                  string `json:"url"`
	Title                string `json:"title"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// IsPage reports whether the tab is a regular page target, as opposed to
// a service worker, extension background page or devtools frontend.
func (t Tab) IsPage() bool {
	return t.Type == "page"
}

// Version is the response of GET /json/version, used as a liveness probe.
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Options configures a Client.
type Options struct {
	// BaseURL is the HTTP address of the debugging endpoint. Defaults to
	// DefaultBaseURL.
	BaseURL string

	// Timeout bounds a single HTTP request or evaluate round trip.
	Timeout time.Duration

	// BypassProxy disables proxy resolution for both the directory HTTP
	// client and the websocket dialer. The debugging endpoint is always
	// local; an ambient HTTP_PROXY would otherwise black-hole it.
	BypassProxy bool
}

// Client talks to one debugging endpoint. The evaluate channel is
// call-scoped: each Evaluate dials, performs one exchange and closes, so
// there is no shared connection state between calls.
type Client struct {
	base    string
	httpc   *http.Client
	dialer  *websocket.Dialer
	timeout time.Duration
	seq     atomic.Int64
}

// New creates a Client for the given debugging endpoint.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.Timeout,
	}
	if opts.BypassProxy {
		transport.Proxy = nil
		dialer.Proxy = nil
	}

	return &Client{
		base:    opts.BaseURL,
		httpc:   &http.Client{Transport: transport, Timeout: opts.Timeout},
		dialer:  dialer,
		timeout: opts.Timeout,
	}
}

// Version probes GET /json/version. A nil error means the browser is up
// and accepting debugging connections.
func (c *Client) Version(ctx context.Context) (*Version, error) {
	var v Version
	if err := c.getJSON(ctx, "/json/version", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListTabs fetches the open-target directory from GET /json, in listing
// order.
func (c *Client) ListTabs(ctx context.Context) ([]Tab, error) {
	var tabs []Tab
	if err := c.getJSON(ctx, "/json", &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("debugging endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("debugging endpoint %s: unexpected status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// FindTab scans tabs in listing order and returns the first tab matching
// preferred, falling back to the first tab matching fallback. A preferred
// match wins even when a fallback match appears earlier in the listing.
func FindTab(tabs []Tab, preferred, fallback func(Tab) bool) (Tab, bool) {
	for _, t := range tabs {
		if preferred(t) {
			return t, true
		}
	}
	for _, t := range tabs {
		if fallback(t) {
			return t, true
		}
	}
	return Tab{}, false
}

// request is the command envelope written to the evaluate channel.
type request struct {
	ID     int64 `json:"id"`
	Method string `json:"method"`
	Params any   `json:"params,omitempty"`
}

// response is the reply envelope. Frames without an id (or with a foreign
// id) are protocol events and are skipped.
type response struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *cdproto.Error  `json:"error,omitempty"`
}

// Evaluate runs a JavaScript expression in the tab behind wsURL and
// returns its JSON value. One websocket connection is opened and closed
// per call.
//
// A reply that carries no result value (an expression evaluating to
// undefined) returns (nil, nil): the caller must treat an error as "no
// information", never as an empty result, and vice versa.
func (c *Client) Evaluate(ctx context.Context, wsURL, expression string) (json.RawMessage, error) {
	if wsURL == "" {
		return nil, fmt.Errorf("evaluate: tab has no debugger url")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)

	id := c.seq.Add(1)
	cmd := request{
		ID:     id,
		Method: runtime.CommandEvaluate,
		Params: &runtime.EvaluateParams{
			Expression:    expression,
			ReturnByValue: true,
		},
	}
	if err := conn.WriteJSON(cmd); err != nil {
		return nil, fmt.Errorf("write evaluate command: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read evaluate reply: %w", err)
		}
		var reply response
		if err := json.Unmarshal(data, &reply); err != nil {
			return nil, fmt.Errorf("malformed evaluate reply: %w", err)
		}
		if reply.ID != id {
			// Event frame or a reply to somebody else's command.
			continue
		}
		if reply.Error != nil {
			return nil, fmt.Errorf("evaluate: %w", reply.Error)
		}
		return decodeEvaluateResult(reply.Result)
	}
}

// decodeEvaluateResult digs result.result.value out of a reply. A reply
// without a value (expression evaluated to undefined, or threw on the
// page) is no-result, not an error.
func decodeEvaluateResult(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var ret struct {
		Result struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &ret); err != nil {
		return nil, fmt.Errorf("decode evaluate result: %w", err)
	}
	if len(ret.Result.Value) == 0 {
		return nil, nil
	}
	return ret.Result.Value, nil
}
