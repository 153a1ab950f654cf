// Package monitor provides a localhost WebSocket server that streams decoded
// input events to attached clients, mainly for debugging decode behavior on
// a second screen while the primary terminal is in raw mode.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alantheprice/terminput/pkg/events"
	"github.com/gorilla/websocket"
)

// ConnectionInfo stores metadata about a WebSocket connection
type ConnectionInfo struct {
	SessionID   string    // Unique session ID for this connection
	ConnectedAt time.Time // When the connection was established
}

// Server streams bus events to WebSocket clients. All diagnostics go to the
// file logger: stdout and stderr belong to the raw-mode terminal.
type Server struct {
	eventBus        *events.EventBus
	addr            string
	logger          *log.Logger
	server          *http.Server
	upgrader        websocket.Upgrader
	connections     sync.Map // map[*websocket.Conn]*ConnectionInfo
	isRunning       bool
	mutex           sync.RWMutex
	startTime       time.Time
	eventsForwarded int64
}

// NewServer creates a monitor server publishing the given bus on addr.
func NewServer(eventBus *events.EventBus, addr string, logger *log.Logger) *Server {
	if addr == "" {
		addr = "localhost:7777"
	}
	return &Server{
		eventBus: eventBus,
		addr:     addr,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // Allow same-origin and direct connections
				}
				// The monitor is a local debugging surface only
				return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
			},
		},
		startTime: time.Now(),
	}
}

// Addr returns the address the server was configured with.
func (s *Server) Addr() string {
	return s.addr
}

// Start starts the monitor server
func (s *Server) Start(ctx context.Context) error {
	s.mutex.Lock()
	if s.isRunning {
		s.mutex.Unlock()
		return fmt.Errorf("monitor server is already running")
	}
	s.isRunning = true
	s.mutex.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check endpoint for connectivity verification
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"addr":   s.addr,
			"uptime": time.Since(s.startTime).String(),
		})
	})

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	// Bind synchronously so the caller learns about a busy port immediately.
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mutex.Lock()
		s.isRunning = false
		s.mutex.Unlock()
		return fmt.Errorf("monitor listen on %s: %w", s.addr, err)
	}

	go func() {
		s.logf("monitor serving at http://%s/ws", s.addr)
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logf("monitor server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	return nil
}

// Shutdown gracefully shuts down the monitor server
func (s *Server) Shutdown() error {
	s.mutex.Lock()
	if !s.isRunning {
		s.mutex.Unlock()
		return nil
	}
	s.isRunning = false
	s.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Close all WebSocket connections
	s.connections.Range(func(conn, value interface{}) bool {
		if wsConn, ok := conn.(*websocket.Conn); ok {
			wsConn.Close()
		}
		return true
	})

	return s.server.Shutdown(ctx)
}

// IsRunning returns true if the monitor server is running
func (s *Server) IsRunning() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.isRunning
}

func (s *Server) logf(format string, v ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, v...)
	}
}

// countConnections returns the current number of WebSocket connections
func (s *Server) countConnections() int {
	count := 0
	s.connections.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

// handleWebSocket upgrades a client and forwards bus events to it until
// either side closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if r := recover(); r != nil {
			s.logf("websocket handler panic: %v", r)
		}
	}()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logf("websocket upgrade error: %v", err)
		return
	}

	// Wrap connection in SafeConn to prevent concurrent write panics
	safeConn := NewSafeConn(conn, s.logger)
	defer safeConn.Close()

	// Generate unique session ID for this connection
	sessionID := fmt.Sprintf("ws_%d", time.Now().UnixNano())

	s.connections.Store(conn, &ConnectionInfo{
		SessionID:   sessionID,
		ConnectedAt: time.Now(),
	})
	defer s.connections.Delete(conn)

	s.logf("monitor client connected: %s", sessionID)

	// Subscribe before the hello message so nothing published after the
	// client sees it can be missed; the channel buffers until the write
	// loop below starts draining.
	eventCh := s.eventBus.Subscribe(sessionID)
	defer s.eventBus.Unsubscribe(sessionID)

	// Send initial connection status
	safeConn.WriteJSON(map[string]interface{}{
		"type": "connection_status",
		"data": map[string]interface{}{"connected": true, "session_id": sessionID},
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Read goroutine - handles incoming messages
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer func() {
			if r := recover(); r != nil {
				s.logf("websocket read goroutine panic recovered: %v", r)
			}
		}()

		conn.SetReadLimit(64 * 1024)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				// Read deadline doubles as the heartbeat interval
				conn.SetReadDeadline(time.Now().Add(60 * time.Second))

				var msg map[string]interface{}
				if err := conn.ReadJSON(&msg); err != nil {
					if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) ||
						websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
						s.logf("websocket %s closed: %v", sessionID, err)
					} else if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
						if err := safeConn.WriteJSON(map[string]interface{}{
							"type": "ping",
							"data": map[string]interface{}{"timestamp": time.Now().Unix()},
						}); err != nil {
							s.logf("websocket %s ping failed: %v", sessionID, err)
							return
						}
						continue
					} else {
						s.logf("websocket %s read error: %v", sessionID, err)
					}
					return
				}

				s.handleClientMessage(safeConn, msg)
			}
		}
	}()

	// Write loop - forwards bus events
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			if err := safeConn.WriteJSON(event); err != nil {
				s.logf("websocket %s write error: %v", sessionID, err)
				return
			}
			atomic.AddInt64(&s.eventsForwarded, 1)

		case <-readDone:
			// Read goroutine has exited
			return
		}
	}
}

// handleClientMessage processes incoming client messages
func (s *Server) handleClientMessage(safeConn *SafeConn, msg map[string]interface{}) {
	msgType, ok := msg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "ping":
		safeConn.WriteJSON(map[string]interface{}{
			"type": "pong",
			"data": map[string]interface{}{"timestamp": time.Now().Unix()},
		})

	case "request_stats":
		safeConn.WriteJSON(map[string]interface{}{
			"type": "stats_update",
			"data": map[string]interface{}{
				"uptime":           time.Since(s.startTime).String(),
				"connections":      s.countConnections(),
				"events_forwarded": atomic.LoadInt64(&s.eventsForwarded),
			},
		})
	}
}

// CheckAddrAvailable checks if an address is available to bind to
func CheckAddrAvailable(addr string) bool {
	listener, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", addr)
	if err != nil {
		return false // Address is in use
	}
	listener.Close()
	return true // Address is free
}

// FindAvailableAddr finds an available address, incrementing the port from
// the given base
func FindAvailableAddr(addr string) string {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	base, err := strconv.Atoi(portStr)
	if err != nil {
		return addr
	}
	for port := base; port < base+100; port++ {
		candidate := net.JoinHostPort(host, strconv.Itoa(port))
		if CheckAddrAvailable(candidate) {
			return candidate
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(base+100))
}
