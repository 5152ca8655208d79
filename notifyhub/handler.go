package notifyhub

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mkesani1/intake-go/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // OnlyAllowLocal middleware already restricts to localhost
	},
}

// HandleNotifyWS upgrades the request to WebSocket and registers the
// connection with the hub. The connection gets a hello event immediately so
// UIs can confirm the stream is live before the first state change.
func HandleNotifyWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hub.Register(conn)
		defer hub.Unregister(conn)

		if hello, err := sonic.Marshal(&types.UploadEvent{Event: types.EventHello, At: time.Now()}); err == nil {
			_ = conn.WriteMessage(websocket.TextMessage, hello)
		}

		// Read loop to detect client close and keep the connection alive
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}
}
