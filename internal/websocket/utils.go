package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// PongWait is how long a connection may stay silent before it is dropped.
	PongWait = 5 * time.Minute
)

// WriteJSON sends an event with data over the WebSocket.
func WriteJSON(conn *websocket.Conn, event Event, requestID string, data interface{}) error {
	return writeTyped(conn, ResponsePayload{Event: event, RequestID: requestID, Data: data})
}

// WriteError sends an error event over the WebSocket.
func WriteError(conn *websocket.Conn, requestID string, body ErrorBody) error {
	return writeTyped(conn, ResponsePayload{Event: EventError, RequestID: requestID, Error: &body})
}

// ReadJSON reads and decodes a message into the provided structure.
// It sets a read deadline.
func ReadJSON(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetReadDeadline(time.Now().Add(PongWait)); err != nil {
		return err
	}
	return conn.ReadJSON(v)
}

func writeTyped(conn *websocket.Conn, v interface{}) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}
