package router

import (
	"social-realtime/socketio"

	"github.com/zishang520/socket.io/v2/socket"
)

// Socket binds every client event of new connections to the dispatcher.
func Socket(server *socket.Server, dispatcher *Dispatcher) {
	events := dispatcher.Events()

	server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		conn := socketio.NewConn(client)

		// Every socket sits in a room named after its id already, so
		// ToConnection needs nothing more here.
		dispatchLog.Debug("connection %s opened", conn.ID())

		for _, event := range events {
			client.On(event, func(args ...any) {
				dispatcher.Handle(conn, event, args...)
			})
		}

		client.On("disconnect", func(args ...any) {
			dispatchLog.Debug("connection %s closed: %v", conn.ID(), args)
			dispatcher.Disconnect(conn)
		})
	})
}
