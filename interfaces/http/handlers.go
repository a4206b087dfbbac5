package httpserver

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-router/application"
	"github.com/felixgeelhaar/agent-router/domain/conversation"
	"github.com/felixgeelhaar/agent-router/domain/event"
	"github.com/felixgeelhaar/agent-router/domain/knowledge"
)

type errorBody struct {
	Error string `json:"error"`
}

type chatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message" binding:"required"`
	UserID         string `json:"user_id"`
}

type addKnowledgeRequest struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Content  string            `json:"content" binding:"required"`
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata"`
}

type toolsResponse struct {
	Tools    []string          `json:"tools"`
	Breakers map[string]string `json:"breakers"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// chat runs one turn. A missing conversation id starts a new conversation.
// The turn outcome, degraded or not, is always returned with 200.
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "message is empty"})
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = c.GetHeader(ConversationHeader)
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	resp := s.engine.ProcessMessage(c.Request.Context(), req.ConversationID, req.Message, req.UserID)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) history(c *gin.Context) {
	st, err := s.engine.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) closeConversation(c *gin.Context) {
	if err := s.engine.Close(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) turns(c *gin.Context) {
	turns, err := s.engine.Turns(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": c.Param("id"), "turns": turns})
}

func (s *Server) turn(c *gin.Context) {
	turn, err := s.engine.Turn(c.Request.Context(), c.Param("id"), c.Param("turn"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, turn)
}

func (s *Server) addKnowledge(c *gin.Context) {
	var req addKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	chunks, err := s.engine.AddKnowledge(c.Request.Context(), knowledge.Document{
		ID:       req.ID,
		Title:    req.Title,
		Content:  req.Content,
		Source:   req.Source,
		Metadata: req.Metadata,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	documentID := req.ID
	if len(chunks) > 0 {
		documentID = chunks[0].DocumentID
	}
	c.JSON(http.StatusCreated, gin.H{"document_id": documentID, "chunks": len(chunks)})
}

func (s *Server) searchKnowledge(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, errorBody{Error: "query parameter q is required"})
		return
	}
	topK := 0
	if raw := c.Query("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorBody{Error: "top_k must be a non-negative integer"})
			return
		}
		topK = n
	}
	hits, err := s.engine.SearchKnowledge(c.Request.Context(), query, topK)
	if err != nil {
		s.fail(c, err)
		return
	}
	if hits == nil {
		hits = []knowledge.Hit{}
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "hits": hits})
}

func (s *Server) tools(c *gin.Context) {
	out := toolsResponse{Tools: []string{}, Breakers: map[string]string{}}
	if s.config.Tools != nil {
		out.Tools = s.config.Tools.Names()
	}
	for kind, state := range s.engine.Coordinator().BreakerStates() {
		out.Breakers[string(kind)] = state
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) specialists(c *gin.Context) {
	names := []string{}
	for _, sp := range s.engine.Coordinator().Specialists() {
		names = append(names, sp.Name())
	}
	sort.Strings(names)
	c.JSON(http.StatusOK, gin.H{"specialists": names})
}

// fail maps domain errors to status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, conversation.ErrInvalidID):
		status = http.StatusBadRequest
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, event.ErrConversationNotFound),
		errors.Is(err, event.ErrTurnNotFound):
		status = http.StatusNotFound
	case errors.Is(err, application.ErrNoEventStore), errors.Is(err, application.ErrNoKnowledgeStore):
		status = http.StatusNotImplemented
	case errors.Is(err, knowledge.ErrEmptyDocument):
		status = http.StatusBadRequest
	}
	c.JSON(status, errorBody{Error: err.Error()})
}
