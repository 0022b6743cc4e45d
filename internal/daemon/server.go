package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"zapdesk/internal/cache"
	"zapdesk/internal/outbox"
	intsync "zapdesk/internal/sync"
	"zapdesk/internal/transport"
)

// Server exposes the cached conversation state over local HTTP. It is
// bound to loopback; remote clients talk to the backend directly, never
// to this daemon.
type Server struct {
	store  *cache.Store
	engine *intsync.Engine
	sender *outbox.Sender
	push   *transport.Client
	logger *zap.Logger
	http   *http.Server
}

// NewServer creates the HTTP server bound to listen.
func NewServer(listen string, store *cache.Store, engine *intsync.Engine, sender *outbox.Sender, push *transport.Client, logger *zap.Logger) *Server {
	s := &Server{
		store:  store,
		engine: engine,
		sender: sender,
		push:   push,
		logger: logger,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	{
		v1.GET("/chats", s.listChats)
		v1.POST("/chats/more", s.loadMoreChats)
		v1.POST("/chats/refresh", s.refreshChats)
		v1.GET("/chats/:id/messages", s.listMessages)
		v1.POST("/chats/:id/messages", s.sendMessage)
		v1.POST("/chats/:id/open", s.openChat)
		v1.GET("/status", s.status)
		v1.POST("/events", s.handleEvent)
	}

	s.http = &http.Server{Addr: listen, Handler: r}
	return s
}

// Handler returns the router, for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown error", zap.Error(err))
	}
}

func (s *Server) listChats(c *gin.Context) {
	if err := s.engine.EnsureChats(c.Request.Context()); err != nil {
		s.logger.Warn("chat fetch failed, serving cache", zap.Error(err))
	}
	meta, _ := s.store.ChatListMeta()
	c.JSON(http.StatusOK, gin.H{
		"chats":   s.store.Chats(),
		"hasMore": meta.HasMore,
		"total":   meta.TotalCount,
	})
}

func (s *Server) loadMoreChats(c *gin.Context) {
	if err := s.engine.LoadMoreChats(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	meta, _ := s.store.ChatListMeta()
	c.JSON(http.StatusOK, gin.H{
		"chats":   s.store.Chats(),
		"hasMore": meta.HasMore,
		"total":   meta.TotalCount,
	})
}

func (s *Server) refreshChats(c *gin.Context) {
	if err := s.engine.RefreshChats(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": s.store.Chats()})
}

func (s *Server) listMessages(c *gin.Context) {
	chatID := c.Param("id")
	var err error
	if c.Query("older") == "true" {
		err = s.engine.LoadOlderMessages(c.Request.Context(), chatID)
	} else {
		err = s.engine.EnsureMessages(c.Request.Context(), chatID)
	}
	msgs, cached := s.store.Messages(chatID)
	if err != nil && !cached {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.logger.Warn("message fetch failed, serving cache",
			zap.String("chat", chatID), zap.Error(err))
	}
	meta, _ := s.store.MessagesMeta(chatID)
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"hasMore":  meta.HasMore,
		"total":    meta.TotalCount,
	})
}

func (s *Server) sendMessage(c *gin.Context) {
	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.sender.Enqueue(c.Param("id"), req.Body)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "id": id})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": cache.StatusPending})
}

func (s *Server) openChat(c *gin.Context) {
	chatID := c.Param("id")
	s.engine.SetActiveChat(chatID)
	if err := s.engine.EnsureMessages(c.Request.Context(), chatID); err != nil {
		s.logger.Warn("message fetch failed on open",
			zap.String("chat", chatID), zap.Error(err))
	}
	msgs, _ := s.store.Messages(chatID)
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (s *Server) status(c *gin.Context) {
	state := "detached"
	if s.push != nil {
		state = string(s.push.State())
	}
	c.JSON(http.StatusOK, gin.H{
		"push":       state,
		"chats":      len(s.store.Chats()),
		"activeChat": s.engine.ActiveChat(),
	})
}

// handleEvent receives back-office webhook events whose side effects
// touch chats indirectly (tag assigned, conversation reassigned). The
// affected entries are invalidated and refetched.
func (s *Server) handleEvent(c *gin.Context) {
	var ev struct {
		Type   string `json:"type" binding:"required"`
		ChatID string `json:"chatId"`
	}
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	var err error
	if ev.ChatID != "" {
		err = s.engine.InvalidateChat(ctx, ev.ChatID)
	} else {
		err = s.engine.InvalidateChatList(ctx)
	}
	if err != nil {
		s.logger.Warn("invalidation refetch failed",
			zap.String("type", ev.Type), zap.String("chat", ev.ChatID), zap.Error(err))
		c.JSON(http.StatusAccepted, gin.H{"invalidated": true, "refetched": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": true, "refetched": true})
}
