package relay

import (
	"log/slog"
	"net/http"

	"github.com/BioHazard786/warpcall/internal/sessionid"
	"github.com/BioHazard786/warpcall/internal/signaling"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// Origins are checked by OriginFilter.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter builds the relay's HTTP surface.
func NewRouter(hub *Hub, presence Presence, allowedOrigins []string, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log), OriginFilter(allowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ws", ServeWs(hub))

	api := router.Group("/api")
	{
		api.POST("/sessions", createSession(hub))
		api.GET("/sessions/:sessionId/participants", listParticipants(presence))
	}
	return router
}

// ServeWs upgrades a request carrying sessionId, userId and optionally
// userName and isHost into a session member.
func ServeWs(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, err := signaling.ParseAddress(c.Request.URL.Query())
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("failed to upgrade connection", "error", err)
			return
		}

		client := newClient(hub, conn, addr)
		if !hub.registerClient(client) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
			conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}

func createSession(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := sessionid.NewUnique(hub.HasSession)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"sessionId": id})
	}
}

func listParticipants(presence Presence) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("sessionId")
		members, err := presence.Members(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessionId": id, "participants": members})
	}
}
