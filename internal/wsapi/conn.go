package wsapi

import (
	"context"
	"encoding/json"
	"sync"

	"nhooyr.io/websocket"
)

// wsConn adapts a *websocket.Conn to hub.Conn, serializing concurrent writes
// with a mutex since nhooyr.io/websocket, like most net.Conn-shaped APIs,
// does not allow concurrent writers on the same connection.
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{c: c}
}

func (w *wsConn) Send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) readMessage(ctx context.Context) (clientMessage, error) {
	var msg clientMessage
	_, data, err := w.c.Read(ctx)
	if err != nil {
		return clientMessage{}, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return clientMessage{}, err
	}
	return msg, nil
}

func (w *wsConn) close(code websocket.StatusCode, reason string) {
	_ = w.c.Close(code, reason)
}
