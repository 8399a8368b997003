package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chatly/chatly-server/internal/auth"
	"github.com/chatly/chatly-server/internal/config"
	"github.com/chatly/chatly-server/internal/hub"
	"github.com/chatly/chatly-server/internal/store"
)

// NewServer builds the HTTP server with REST and websocket routes.
func NewServer(h *hub.Hub, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(h, authService, st, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *hub.Hub, authService *auth.Service, st store.Store, cfg config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	authHandlers := NewAuthHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(st, logger)
	participantHandlers := NewParticipantHandlers(st, logger)
	messageHandlers := NewMessageHandlers(st, logger)
	userHandlers := NewUserHandlers(st, logger)
	wsHandler := NewWSHandler(h, authService, st, cfg.HistoryLimit, logger)

	api := router.Group("/api")
	api.POST("/auth/register", authHandlers.Register)
	api.POST("/auth/login", authHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	{
		protected.GET("/users", userHandlers.ListUsers)
		protected.GET("/users/:user_id", userHandlers.GetUser)

		protected.POST("/rooms", roomHandlers.CreateRoom)
		protected.GET("/rooms", roomHandlers.ListRooms)
		protected.GET("/rooms/:room_id", roomHandlers.GetRoom)
		protected.PUT("/rooms/:room_id", roomHandlers.UpdateRoom)
		protected.DELETE("/rooms/:room_id", roomHandlers.DeleteRoom)

		protected.POST("/rooms/:room_id/participants", participantHandlers.Join)
		protected.DELETE("/rooms/:room_id/participants", participantHandlers.Leave)
		protected.GET("/rooms/:room_id/participants", participantHandlers.List)

		protected.GET("/rooms/:room_id/messages", messageHandlers.ListByRoom)
		protected.DELETE("/messages/:message_id", messageHandlers.Delete)
	}

	// The websocket endpoint authenticates inside the handler so it can
	// answer with a close code instead of an HTTP status.
	router.GET("/ws/chat/:room_id", wsHandler.Handle)

	return router
}
