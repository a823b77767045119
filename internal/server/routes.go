package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quaymarket/parley/internal/chat"
	"github.com/quaymarket/parley/internal/identity"
	"github.com/quaymarket/parley/internal/models"
	"github.com/quaymarket/parley/internal/notify"
)

const identityKey = "parley.identity"

// registerRoutes sets up all API routes on the Gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	api := router.Group("/api", s.auth())
	{
		api.POST("/rooms", s.handleGetOrCreateRoom)
		api.GET("/rooms", s.handleListRooms)
		api.GET("/rooms/:id/messages", s.handleHistory)
		api.POST("/rooms/:id/messages", s.handleSend)
		api.POST("/rooms/:id/read", s.handleMarkRead)
		api.POST("/rooms/:id/resolve", s.handleResolve)
		api.GET("/unread", s.handleUnread)
		api.GET("/events", s.handleSSE)
	}
	router.GET("/ws/rooms/:id", s.auth(), s.handleRoomWS)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// auth resolves the bearer token to an Identity. No identity means 401 and a
// redirect to auth on the client; never retried.
func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		ident, err := s.idp.CurrentUser(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "unauthorized",
				"retryable": false,
			})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

// bearerToken extracts the credential from the Authorization header, falling
// back to the access_token query parameter for websocket and SSE clients
// that cannot set headers.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("access_token")
}

func currentIdentity(c *gin.Context) *identity.Identity {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	ident, _ := v.(*identity.Identity)
	return ident
}

// writeChatError maps the error taxonomy onto HTTP. Store failures carry a
// retryable hint so clients preserve drafts and offer a retry affordance.
func writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "retryable": false})
	case errors.Is(err, chat.ErrEmptyContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required", "retryable": false})
	case errors.Is(err, chat.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found", "retryable": false})
	case errors.Is(err, chat.ErrNotSupportTicket):
		c.JSON(http.StatusConflict, gin.H{"error": "room is not a support ticket", "retryable": false})
	default:
		var se *chat.StoreError
		if errors.As(err, &se) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "store request failed", "retryable": true})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "retryable": false})
	}
}

type getOrCreateRequest struct {
	OrgID string          `json:"org_id"`
	Kind  models.RoomKind `json:"kind"`
}

func (s *Server) handleGetOrCreateRoom(c *gin.Context) {
	ident := currentIdentity(c)

	var req getOrCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "retryable": false})
		return
	}

	// Merchants opening a support ticket are implicitly scoped to their
	// own org.
	if req.Kind == models.KindStoreToAdmin && req.OrgID == "" {
		req.OrgID = ident.OrgID
	}

	room, err := s.directory.GetOrCreate(c.Request.Context(), req.OrgID, ident, req.Kind)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (s *Server) handleListRooms(c *gin.Context) {
	ident := currentIdentity(c)
	ctx := c.Request.Context()

	var (
		rooms []models.Room
		err   error
	)
	switch ident.Role {
	case identity.RoleMerchant:
		rooms, err = s.directory.RoomsForOrg(ctx, ident.OrgID)
	case identity.RoleAdmin:
		rooms, err = s.directory.SupportRooms(ctx)
	case identity.RoleBuyer:
		rooms, err = s.directory.RoomsForCustomer(ctx, ident.UserID)
	}
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (s *Server) handleHistory(c *gin.Context) {
	ident := currentIdentity(c)
	roomID := c.Param("id")

	room, err := s.directory.Get(c.Request.Context(), roomID)
	if err != nil {
		writeChatError(c, err)
		return
	}
	if !canAccess(ident, room) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "retryable": false})
		return
	}

	msgs, err := s.store.History(c.Request.Context(), roomID)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

type sendRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSend(c *gin.Context) {
	ident := currentIdentity(c)
	roomID := c.Param("id")

	room, err := s.directory.Get(c.Request.Context(), roomID)
	if err != nil {
		writeChatError(c, err)
		return
	}
	if !canAccess(ident, room) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "retryable": false})
		return
	}

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "retryable": false})
		return
	}

	msg, err := s.store.Send(c.Request.Context(), roomID, ident.UserID, req.Content)
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// handleMarkRead is fire-and-forget from the client's perspective: store
// failures are logged, never surfaced, and the call is idempotent.
func (s *Server) handleMarkRead(c *gin.Context) {
	ident := currentIdentity(c)
	roomID := c.Param("id")

	marked, err := s.reads.MarkRead(c.Request.Context(), roomID, ident.UserID)
	if err != nil {
		log.Printf("server: mark read room %s for %s: %v", roomID, ident.UserID, err)
	}
	c.JSON(http.StatusAccepted, gin.H{"marked": marked})
}

func (s *Server) handleResolve(c *gin.Context) {
	ident := currentIdentity(c)
	if ident.Role != identity.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "retryable": false})
		return
	}
	if err := s.directory.Resolve(c.Request.Context(), c.Param("id")); err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.RoomStatusClosed})
}

// handleUnread fails open: a count failure reports zero rather than blocking
// navigation.
func (s *Server) handleUnread(c *gin.Context) {
	ident := currentIdentity(c)

	count, err := notify.UnreadCount(c.Request.Context(), s.db, *ident)
	if err != nil {
		log.Printf("server: unread count for %s: %v (failing open)", ident.UserID, err)
		count = 0
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// canAccess reports whether the identity may view the room: buyers their own
// inquiry rooms, merchants their org's rooms, admins every support ticket.
func canAccess(ident *identity.Identity, room *models.Room) bool {
	if ident == nil {
		return false
	}
	switch ident.Role {
	case identity.RoleBuyer:
		return room.Kind == models.KindBuyerToStore && room.CustomerID == ident.UserID
	case identity.RoleMerchant:
		return room.OrgID == ident.OrgID
	case identity.RoleAdmin:
		return room.Kind == models.KindStoreToAdmin
	}
	return false
}
