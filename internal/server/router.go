package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/tandem/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/tandem/backend/internal/board"
)

var (
	errMissingHub        = errors.New("hub dependency required")
	errMissingIdentifier = errors.New("identifier dependency required")
)

// Dependencies wires the HTTP surface: health, optional debug dump and the
// websocket sync endpoint.
type Dependencies struct {
	Hub        *Hub
	Identifier *auth.Identifier
	Logger     *zap.Logger
	DebugState bool
}

// NewHTTPHandler builds the gin engine serving /healthz, /ws and, when
// enabled, /debug/state.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Hub == nil {
		return nil, errMissingHub
	}
	if deps.Identifier == nil {
		return nil, errMissingIdentifier
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		hub:        deps.Hub,
		identifier: deps.Identifier,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.DebugState {
		router.GET("/debug/state", handler.handleDebugState)
	}
	router.GET("/ws", handler.handleWebsocket)

	return router, nil
}

type httpHandler struct {
	hub        *Hub
	identifier *auth.Identifier
	logger     *zap.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *httpHandler) handleDebugState(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.DebugState())
}

func (h *httpHandler) handleWebsocket(c *gin.Context) {
	userID, err := board.NewUserID(h.identifier.DeriveUserID(c.Request))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_identity"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.HandleConnection(conn, userID)
}
