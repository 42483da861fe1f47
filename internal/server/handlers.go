package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Chative-support-agent/server/internal/agent/chat"
	"github.com/Chative-support-agent/server/internal/agent/model"
	errx "github.com/Chative-support-agent/server/internal/core/error"
)

type ChatService interface {
	RunTurn(ctx context.Context, req chat.Request) (*chat.Response, error)
}

type EvaluationService interface {
	SubmitFeedback(ctx context.Context, conversationID string, thumbsUp bool, comment string) error
	Evaluate(ctx context.Context, conversationID string) (*model.LlmEvaluation, error)
	List(ctx context.Context) (*model.EvaluationListing, error)
	Get(ctx context.Context, conversationID string) (*model.ConversationTurn, error)
}

type ChatHandler struct {
	chat ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{chat: svc}
}

// POST /chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errx.InvalidInput("Invalid request body"))
		return
	}
	resp, err := h.chat.RunTurn(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, resp)
}

type EvaluationHandler struct {
	svc EvaluationService
}

func NewEvaluationHandler(svc EvaluationService) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

type feedbackRequest struct {
	ConversationID string `json:"conversation_id"`
	ThumbsUp       *bool  `json:"thumbs_up"`
	Comment        string `json:"comment"`
}

// POST /feedback
func (h *EvaluationHandler) Feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, errx.InvalidInput("Invalid request body"))
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" || req.ThumbsUp == nil {
		RespondError(c, errx.InvalidInput("conversation_id and thumbs_up are required"))
		return
	}
	if err := h.svc.SubmitFeedback(c.Request.Context(), req.ConversationID, *req.ThumbsUp, req.Comment); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "ok", "message": "Feedback recorded"})
}

type evaluateRequest struct {
	ConversationID string `json:"conversation_id"`
}

// POST /evaluate
func (h *EvaluationHandler) Evaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.ConversationID) == "" {
		RespondError(c, errx.InvalidInput("conversation_id is required"))
		return
	}
	ev, err := h.svc.Evaluate(c.Request.Context(), req.ConversationID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"status": "ok", "evaluation": ev})
}

// GET /evaluations
func (h *EvaluationHandler) List(c *gin.Context) {
	listing, err := h.svc.List(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, listing)
}

// GET /evaluations/:conversation_id
func (h *EvaluationHandler) Get(c *gin.Context) {
	turn, err := h.svc.Get(c.Request.Context(), c.Param("conversation_id"))
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, turn)
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
