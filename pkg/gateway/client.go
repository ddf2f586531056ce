package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client talks to a OneBot-compatible gateway: inbound events arrive on
// a WebSocket stream, outbound actions go over HTTP. The client does
// not reconnect; a dropped stream surfaces as an error from Listen and
// the caller decides what to do with the process.
type Client struct {
	host     string
	httpPort int
	wsPort   int
	httpc    *http.Client
	logger   zerolog.Logger
}

// NewClient creates a gateway client for the given endpoint.
func NewClient(host string, httpPort, wsPort int, logger zerolog.Logger) *Client {
	return &Client{
		host:     host,
		httpPort: httpPort,
		wsPort:   wsPort,
		httpc:    &http.Client{Timeout: 30 * time.Second},
		logger:   logger.With().Str("component", "gateway").Logger(),
	}
}

// Listen connects to the gateway event stream and invokes callback for
// every decoded frame, in arrival order, until ctx is cancelled or the
// connection drops. Frames that fail to decode are logged and skipped.
func (c *Client) Listen(ctx context.Context, callback func(*Event)) error {
	endpoint := fmt.Sprintf("ws://%s/", net.JoinHostPort(c.host, strconv.Itoa(c.wsPort)))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial event stream %s: %w", endpoint, err)
	}

	c.logger.Info().Str("endpoint", endpoint).Msg("Connected to gateway event stream")

	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("event stream closed: %w", err)
		}

		event, err := ParseEvent(raw)
		if err != nil {
			c.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Dropping undecodable frame")
			continue
		}

		callback(event)
	}
}

// Call performs one gateway action: POST http://host:port/<action> with
// a JSON params body, returning the decoded JSON response. A nil params
// map sends an empty object.
func (c *Client) Call(ctx context.Context, action string, params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", action, err)
	}

	endpoint := fmt.Sprintf("http://%s/%s", net.JoinHostPort(c.host, strconv.Itoa(c.httpPort)), action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("call %s: gateway returned %s", action, resp.Status)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", action, err)
	}

	c.logger.Debug().Str("action", action).Msg("Gateway action completed")
	return result, nil
}
