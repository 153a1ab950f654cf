package monitor

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// SafeConn wraps a WebSocket connection with write mutex and panic recovery
type SafeConn struct {
	conn    *websocket.Conn
	logger  *log.Logger
	writeMu sync.Mutex
	closed  bool
}

// NewSafeConn creates a new safe connection wrapper
func NewSafeConn(conn *websocket.Conn, logger *log.Logger) *SafeConn {
	return &SafeConn{
		conn:   conn,
		logger: logger,
		closed: false,
	}
}

// WriteJSON safely writes JSON to the WebSocket connection
func (sc *SafeConn) WriteJSON(v interface{}) error {
	if sc.closed {
		return nil // Silently ignore writes to closed connections
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if sc.closed {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			if sc.logger != nil {
				sc.logger.Printf("websocket write panic recovered: %v", r)
			}
			sc.closed = true
		}
	}()

	return sc.conn.WriteJSON(v)
}

// Close closes the underlying connection
func (sc *SafeConn) Close() error {
	sc.writeMu.Lock()
	sc.closed = true
	sc.writeMu.Unlock()
	return sc.conn.Close()
}

// Underlying returns the underlying websocket.Conn for read operations
func (sc *SafeConn) Underlying() *websocket.Conn {
	return sc.conn
}
