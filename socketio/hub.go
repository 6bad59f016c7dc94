package socketio

import (
	"social-realtime/utils"

	"github.com/zishang520/socket.io/v2/socket"
)

// UserRoom is the room every connection of a user joins.
func UserRoom(userID string) string {
	return "user-" + userID
}

// Hub addresses users, single connections and everyone. Rooms go through
// the server adapter so emits reach sockets on every node.
type Hub struct {
	server *socket.Server
}

func NewHub(server *socket.Server) *Hub {
	return &Hub{server: server}
}

func (h *Hub) ToUser(userID, event string, payload any) {
	h.emit(UserRoom(userID), event, payload)
}

// ToConnection relies on every socket sitting in a room named after its id.
func (h *Hub) ToConnection(connID, event string, payload any) {
	h.emit(connID, event, payload)
}

func (h *Hub) Broadcast(event string, payload any) {
	h.server.Emit(event, payload)
}

func (h *Hub) emit(room, event string, payload any) {
	if err := h.server.To(socket.Room(room)).Emit(event, payload); err != nil {
		socketLog.Error("emit %s to %s failed: %v", event, room, err)
	}
}

// Conn adapts a socket.io socket to the connection the router works with.
type Conn struct {
	client *socket.Socket
}

func NewConn(client *socket.Socket) *Conn {
	return &Conn{client: client}
}

func (c *Conn) ID() string {
	return string(c.client.Id())
}

// Claims returns the verified token claims, nil for anonymous sockets.
func (c *Conn) Claims() *utils.TokenMetadata {
	claims, _ := c.client.Data().(*utils.TokenMetadata)
	return claims
}

func (c *Conn) Join(room string) {
	c.client.Join(socket.Room(room))
}

func (c *Conn) Leave(room string) {
	c.client.Leave(socket.Room(room))
}

func (c *Conn) Emit(event string, payload any) {
	if err := c.client.Emit(event, payload); err != nil {
		socketLog.Error("emit %s to %s failed: %v", event, c.ID(), err)
	}
}
