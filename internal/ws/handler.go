package ws

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/rps-escrow-backend/internal/pkg/ws"
)

type wsHandler struct {
	notificationHub *ws.WebSocketNotificationHub
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// callers are authenticated by token, not by origin
	CheckOrigin: func(*http.Request) bool { return true },
}

func RegisterRoutes(rg *gin.RouterGroup, hub *ws.WebSocketNotificationHub, auth gin.HandlerFunc) {
	handler := wsHandler{
		notificationHub: hub,
	}

	routes := rg.Group("/ws")
	routes.GET("/game/:id", auth, handler.serveWs)
}

func (wsh *wsHandler) serveWs(c *gin.Context) {
	gameId, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, reject.GameIdProblem(c.Param("id")))
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Uint64("gameId", gameId).Msg("Websocket upgrade failed")
		return
	}
	topic := ws.GameTopic(gameId)
	defer conn.Close()
	defer wsh.notificationHub.UnregisterListener(topic, conn)

	wsh.notificationHub.RegisterListener(topic, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug().Err(err).Uint64("gameId", gameId).Msg("Websocket closed")
			return
		}
	}
}
