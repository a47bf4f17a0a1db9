package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// BrokerDriver speaks raw Chrome DevTools Protocol JSON-RPC over a
// WebSocket, used as the fallback automation path when a direct go-rod
// attach is unavailable.
type BrokerDriver struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	wsURL string
	msgID int
}

// DialBroker resolves the WebSocket debugger URL from a CDP HTTP endpoint
// and connects to it.
func DialBroker(ctx context.Context, debuggerHTTPURL string, timeout time.Duration) (*BrokerDriver, error) {
	wsURL, err := resolveWebSocketURL(ctx, debuggerHTTPURL, timeout)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("broker websocket dial failed: %w", err)
	}
	return &BrokerDriver{conn: conn, wsURL: wsURL}, nil
}

func resolveWebSocketURL(ctx context.Context, debuggerHTTPURL string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	url := strings.TrimSuffix(debuggerHTTPURL, "/") + "/json/version"

	var lastErr error
	for time.Now().Before(deadline) {
		reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		resp, err := http.DefaultClient.Do(req)
		cancel()
		if err == nil {
			var info struct {
				WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
			}
			decodeErr := json.NewDecoder(resp.Body).Decode(&info)
			resp.Body.Close()
			if decodeErr == nil && info.WebSocketDebuggerURL != "" {
				return info.WebSocketDebuggerURL, nil
			}
			lastErr = decodeErr
		} else {
			lastErr = err
		}
		time.Sleep(200 * time.Millisecond)
	}
	return "", fmt.Errorf("debugger did not become ready: %w", lastErr)
}

func (b *BrokerDriver) send(method string, params map[string]any) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.msgID++
	msg := map[string]any{"id": b.msgID, "method": method}
	if params != nil {
		msg["params"] = params
	}

	if err := b.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("broker write error: %w", err)
	}

	targetID := b.msgID
	b.conn.SetReadDeadline(time.Now().Add(20 * time.Second))
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("broker read error: %w", err)
		}
		var resp struct {
			ID     int             `json:"id"`
			Result json.RawMessage `json:"result"`
			Error  *struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &resp) == nil && resp.ID == targetID {
			if resp.Error != nil {
				return nil, fmt.Errorf("broker error: %s", resp.Error.Message)
			}
			return resp.Result, nil
		}
	}
}

func (b *BrokerDriver) Navigate(ctx context.Context, url string) error {
	_, err := b.send("Page.navigate", map[string]any{"url": url})
	if err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)
	return nil
}

func (b *BrokerDriver) eval(expr string) (string, error) {
	result, err := b.send("Runtime.evaluate", map[string]any{"expression": expr, "returnByValue": true})
	if err != nil {
		return "", err
	}
	var evalResult struct {
		Result struct {
			Value string `json:"value"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &evalResult); err != nil {
		return "", err
	}
	return evalResult.Result.Value, nil
}

func (b *BrokerDriver) Click(ctx context.Context, selector string) error {
	_, err := b.eval(fmt.Sprintf(`(() => { const el = document.querySelector(%q); if (!el) throw new Error("element not found"); el.click(); return "ok"; })()`, selector))
	return err
}

func (b *BrokerDriver) Type(ctx context.Context, selector, value string) error {
	return b.Fill(ctx, selector, value)
}

func (b *BrokerDriver) Fill(ctx context.Context, selector, value string) error {
	_, err := b.eval(fmt.Sprintf(`(() => { const el = document.querySelector(%q); if (!el) throw new Error("element not found"); el.value = %q; el.dispatchEvent(new Event("input", {bubbles:true})); return "ok"; })()`, selector, value))
	return err
}

func (b *BrokerDriver) WaitFor(ctx context.Context, selector string) error {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		val, err := b.eval(fmt.Sprintf(`document.querySelector(%q) ? "found" : ""`, selector))
		if err == nil && val == "found" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return fmt.Errorf("element not found: %s", selector)
}

func (b *BrokerDriver) Press(ctx context.Context, key string) error {
	_, err := b.send("Input.dispatchKeyEvent", map[string]any{"type": "keyDown", "key": key})
	return err
}

func (b *BrokerDriver) Screenshot(ctx context.Context) ([]byte, error) {
	result, err := b.send("Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return nil, err
	}
	var shot struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &shot); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(shot.Data)
}

func (b *BrokerDriver) ExtractText(ctx context.Context, selector string) (string, error) {
	return b.eval(fmt.Sprintf(`Array.from(document.querySelectorAll(%q)).map(e => e.innerText).join("\n")`, selector))
}

func (b *BrokerDriver) CurrentURL(ctx context.Context) (string, error) {
	return b.eval(`document.location.href`)
}

func (b *BrokerDriver) VisibleText(ctx context.Context) (string, error) {
	return b.eval(`document.body ? document.body.innerText : ""`)
}

func (b *BrokerDriver) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
