package websocket

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// socketEmitter adapts a socket.io socket to the hub's Emitter interface.
type socketEmitter struct {
	socket *socketio.Socket
}

func (e *socketEmitter) Emit(event string, data any) error {
	return e.socket.Emit(event, data)
}

// decodePayload converts a socket.io event argument (a map[string]any once
// the parser is done with it) into a typed request via a JSON round-trip.
func decodePayload(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// SetupSocketIO builds the socket.io server and wires its events into the
// hub. Each connection gets its own Conn; the hub does the rest.
func SetupSocketIO(hub *Hub) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		logrus.WithField("socket_id", socket.Id()).Debug("socket connected")

		conn := hub.NewConn(&socketEmitter{socket: socket})

		socket.On("join_project", func(datas ...any) {
			var req JoinRequest
			if len(datas) == 0 || decodePayload(datas[0], &req) != nil {
				return
			}
			hub.Join(context.Background(), conn, req)
		})

		socket.On("leave_project", func(datas ...any) {
			var req LeaveRequest
			if len(datas) == 0 || decodePayload(datas[0], &req) != nil {
				return
			}
			hub.Leave(context.Background(), conn, req)
		})

		socket.On("code_change", func(datas ...any) {
			var req CodeChangeRequest
			if len(datas) == 0 || decodePayload(datas[0], &req) != nil {
				return
			}
			hub.CodeChange(context.Background(), conn, req)
		})

		socket.On("cursor_move", func(datas ...any) {
			var req CursorMoveRequest
			if len(datas) == 0 || decodePayload(datas[0], &req) != nil {
				return
			}
			hub.CursorMove(context.Background(), conn, req)
		})

		socket.On("language_change", func(datas ...any) {
			var req LanguageChangeRequest
			if len(datas) == 0 || decodePayload(datas[0], &req) != nil {
				return
			}
			hub.LanguageChange(context.Background(), conn, req)
		})

		socket.On("disconnecting", func(datas ...any) {
			hub.Disconnect(context.Background(), conn)
		})

		socket.On("disconnect", func(datas ...any) {
			logrus.WithField("socket_id", socket.Id()).Debug("socket disconnected")
			socket.RemoveAllListeners("")
		})
	})

	return srv
}
