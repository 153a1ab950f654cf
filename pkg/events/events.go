// Package events provides the event system carrying decoded input between
// the terminal pipeline and its consumers (CLI echo, monitor server, traces).
package events

import (
	"fmt"
	"sync"
	"time"
)

// InputEvent represents an event that can be forwarded between the decode
// pipeline and attached consumers.
type InputEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Common event types
const (
	EventTypeKeyPressed       = "key_pressed"
	EventTypePasteReceived    = "paste_received"
	EventTypeResize           = "resize"
	EventTypeProtocolDetected = "protocol_detected"
	EventTypeSessionStarted   = "session_started"
	EventTypeSessionStopped   = "session_stopped"
	EventTypeError            = "error"
)

// EventBus manages event distribution to any number of subscribers.
type EventBus struct {
	subscribers map[string]chan InputEvent
	mutex       sync.RWMutex
	nextID      int64
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]chan InputEvent),
	}
}

// Subscribe adds a new subscriber to the event bus
func (eb *EventBus) Subscribe(name string) <-chan InputEvent {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	ch := make(chan InputEvent, 100) // Buffered channel
	eb.subscribers[name] = ch
	return ch
}

// Unsubscribe removes a subscriber from the event bus
func (eb *EventBus) Unsubscribe(name string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if ch, exists := eb.subscribers[name]; exists {
		delete(eb.subscribers, name)
		close(ch)
	}
}

// Publish broadcasts an event to all subscribers
func (eb *EventBus) Publish(eventType string, data any) {
	eb.mutex.Lock()
	eb.nextID++
	event := InputEvent{
		ID:        generateEventID(eb.nextID),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
	subscribers := make([]chan InputEvent, 0, len(eb.subscribers))
	for _, ch := range eb.subscribers {
		subscribers = append(subscribers, ch)
	}
	eb.mutex.Unlock()

	// Publish to all subscribers without holding the lock
	for _, ch := range subscribers {
		select {
		case ch <- event:
		default:
			// Channel is full, skip this subscriber
			// This prevents blocking if a subscriber is slow
		}
	}
}

// generateEventID creates a unique event ID
func generateEventID(id int64) string {
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102-150405"), id)
}

// Helper functions for creating specific event types

// KeyPressedEvent creates a key pressed event
func KeyPressedEvent(name, sequence string, ctrl, meta, shift bool) map[string]interface{} {
	return map[string]interface{}{
		"name":     name,
		"sequence": sequence,
		"ctrl":     ctrl,
		"meta":     meta,
		"shift":    shift,
	}
}

// PasteReceivedEvent creates a paste received event
func PasteReceivedEvent(content string, byteCount int) map[string]interface{} {
	return map[string]interface{}{
		"content":    content,
		"byte_count": byteCount,
	}
}

// ResizeEvent creates a terminal resize event
func ResizeEvent(width, height int) map[string]interface{} {
	return map[string]interface{}{
		"width":  width,
		"height": height,
	}
}

// ProtocolDetectedEvent creates a protocol detection result event
func ProtocolDetectedEvent(extended bool, flags int) map[string]interface{} {
	return map[string]interface{}{
		"extended": extended,
		"flags":    flags,
	}
}

// SessionStartedEvent creates a session started event
func SessionStartedEvent(intercept string, extended bool) map[string]interface{} {
	return map[string]interface{}{
		"intercept": intercept,
		"extended":  extended,
	}
}

// ErrorEvent creates an error event
func ErrorEvent(message string, err error) map[string]interface{} {
	return map[string]interface{}{
		"message": message,
		"error":   err.Error(),
	}
}
