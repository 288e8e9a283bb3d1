// Package server is a reference chat backend: per-user chats, messages and
// feedback stored in DuckDB, answers from a Completer, served with gin.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/strrl/ragchat/internal/config"
	"github.com/strrl/ragchat/internal/system"
	"github.com/strrl/ragchat/pkg/models"
)

// historyLimit is how many earlier messages accompany a question.
const historyLimit = 10

// Server serves the chat API over gin.
type Server struct {
	Addr string

	store     *Store
	completer Completer
	limiter   *Limiter
}

// New creates a server. limiter may be nil to disable rate limiting.
func New(addr string, store *Store, completer Completer, limiter *Limiter) *Server {
	return &Server{Addr: addr, store: store, completer: completer, limiter: limiter}
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	system.Logger.Info("chat backend listening", "addr", s.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the gin engine with every route mounted.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", requireIdentity())
	api.GET("/chats", s.listChats)
	api.POST("/chats", s.createChat)
	api.GET("/chats/:id/messages", s.listMessages)
	api.PUT("/chats/:id", s.renameChat)
	api.DELETE("/chats/:id", s.deleteChat)

	r.POST("/chat", requireIdentity(), rateLimit(s.limiter), s.chat)
	r.POST("/feedback", requireIdentity(), s.feedback)
	return r
}

type chatJSON struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	UpdatedAt string `json:"updated_at"`
}

func toJSON(cs models.ChatSession) chatJSON {
	return chatJSON{ID: cs.ID, Title: cs.Title, UpdatedAt: cs.UpdatedAt.UTC().Format(time.RFC3339Nano)}
}

func (s *Server) listChats(c *gin.Context) {
	list, err := s.store.ListChats(c.Request.Context(), identityOf(c))
	if err != nil {
		s.internal(c, "failed to load chats", err)
		return
	}
	out := make([]chatJSON, 0, len(list))
	for _, cs := range list {
		out = append(out, toJSON(cs))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createChat(c *gin.Context) {
	var req struct {
		ID    string `json:"id" binding:"required"`
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	cs, err := s.store.CreateChat(c.Request.Context(), identityOf(c), req.ID, req.Title)
	switch {
	case errors.Is(err, ErrChatExists):
		abort(c, http.StatusConflict, "chat "+req.ID+" already exists")
		return
	case err != nil:
		s.internal(c, "failed to create chat", err)
		return
	}
	c.JSON(http.StatusOK, toJSON(cs))
}

func (s *Server) listMessages(c *gin.Context) {
	msgs, err := s.store.Messages(c.Request.Context(), identityOf(c), c.Param("id"))
	switch {
	case errors.Is(err, ErrChatNotFound):
		abort(c, http.StatusNotFound, "chat "+c.Param("id")+" not found")
		return
	case err != nil:
		s.internal(c, "failed to load messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) renameChat(c *gin.Context) {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		abort(c, http.StatusBadRequest, "title cannot be empty")
		return
	}
	cs, err := s.store.RenameChat(c.Request.Context(), identityOf(c), c.Param("id"), title)
	switch {
	case errors.Is(err, ErrChatNotFound):
		abort(c, http.StatusNotFound, "chat "+c.Param("id")+" not found")
		return
	case err != nil:
		s.internal(c, "failed to rename chat", err)
		return
	}
	c.JSON(http.StatusOK, toJSON(cs))
}

func (s *Server) deleteChat(c *gin.Context) {
	err := s.store.DeleteChat(c.Request.Context(), identityOf(c), c.Param("id"))
	switch {
	case errors.Is(err, ErrChatNotFound):
		abort(c, http.StatusNotFound, "chat "+c.Param("id")+" not found")
		return
	case err != nil:
		s.internal(c, "failed to delete chat", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) chat(c *gin.Context) {
	var req models.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		abort(c, http.StatusBadRequest, "question cannot be empty")
		return
	}
	model := req.Model
	if !config.KnownModel(model) {
		model = config.DefaultModel
	}
	mode := req.PromptMode
	if mode != models.PromptModeResearch {
		mode = models.PromptModeDefault
	}

	ctx := c.Request.Context()
	user := identityOf(c)
	history, err := s.store.History(ctx, user, req.SessionID, historyLimit)
	if err != nil {
		s.internal(c, "failed to load history", err)
		return
	}
	prompt := Prompt{
		Model:      model,
		PromptMode: mode,
		FormatMode: DetectFormatMode(question),
		History:    history,
		Question:   question,
	}
	answer, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		s.internal(c, "model failed to answer", err)
		return
	}
	if err := s.store.AppendExchange(ctx, user, req.SessionID, question, answer); err != nil {
		s.internal(c, "failed to save messages", err)
		return
	}
	c.JSON(http.StatusOK, models.Completion{
		Answer:         answer,
		ModelUsed:      model,
		PromptModeUsed: mode,
		FormatModeUsed: prompt.FormatMode,
	})
}

func (s *Server) feedback(c *gin.Context) {
	var fb models.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(fb.ExpectedAnswer) == "" {
		abort(c, http.StatusBadRequest, "expected answer cannot be empty")
		return
	}
	if err := s.store.SaveFeedback(c.Request.Context(), identityOf(c), fb); err != nil {
		s.internal(c, "failed to save feedback", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "feedback saved"})
}

func (s *Server) internal(c *gin.Context, detail string, err error) {
	system.Logger.Error(detail, "err", err, "user", identityOf(c))
	abort(c, http.StatusInternalServerError, detail)
}
