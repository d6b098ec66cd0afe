package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ollamachat/internal/app"
	"ollamachat/internal/generation"
	"ollamachat/internal/transport/http/response"
)

type MessageHandler struct {
	chatService       *app.ChatService
	generationService *app.GenerationService
	registry          *generation.Registry
}

type SendMessageRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

func NewMessageHandler(chatService *app.ChatService, generationService *app.GenerationService, registry *generation.Registry) *MessageHandler {
	return &MessageHandler{
		chatService:       chatService,
		generationService: generationService,
		registry:          registry,
	}
}

func (h *MessageHandler) GetMessages(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}

	chatID, ok := chatIDFromParam(c)
	if !ok {
		return
	}

	messages, err := h.chatService.GetMessages(c.Request.Context(), userID, chatID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrChatNotFound):
			response.Error(c, http.StatusNotFound, "chat not found")
		default:
			response.Error(c, http.StatusInternalServerError, "fetch messages failed")
		}
		return
	}

	response.OK(c, http.StatusOK, "messages fetched successfully", messages)
}

// SendMessage proxies one prompt to the model backend and relays the answer
// as a chunked text/plain stream. Everything that can fail with a structured
// error happens in Begin; once the headers are flushed the relay engine owns
// the connection and reports failures in-band.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}

	chatID, ok := chatIDFromParam(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "prompt is required")
		return
	}

	gen, err := h.generationService.Begin(c.Request.Context(), userID, chatID, req.Prompt)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrPromptRequired):
			response.Error(c, http.StatusBadRequest, "prompt is required")
		case errors.Is(err, app.ErrChatNotFound):
			response.Error(c, http.StatusNotFound, "chat not found")
		case errors.Is(err, generation.ErrActiveGeneration):
			response.Error(c, http.StatusConflict, "a generation is already running for this chat")
		default:
			response.Error(c, http.StatusInternalServerError, "send message failed")
		}
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.generationService.Abandon(gen)
		response.Error(c, http.StatusInternalServerError, "stream not supported")
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	_ = h.generationService.Stream(gen, &flushingSink{writer: c.Writer, flusher: flusher})
}

func (h *MessageHandler) GenerationHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}

	chatID, ok := chatIDFromParam(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.generationService.AuditHistory(userID, chatID, limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrChatNotFound):
			response.Error(c, http.StatusNotFound, "chat not found")
		default:
			response.Error(c, http.StatusInternalServerError, "fetch generation history failed")
		}
		return
	}

	response.OK(c, http.StatusOK, "generation history fetched successfully", records)
}

// StopGeneration always reports success: the caller's intent is "stop if
// running", which holds whether or not a session was found.
func (h *MessageHandler) StopGeneration(c *gin.Context) {
	chatID, ok := chatIDFromParam(c)
	if !ok {
		return
	}

	h.registry.Cancel(chatID)
	response.OK(c, http.StatusOK, "generation stopped", nil)
}

type flushingSink struct {
	writer  gin.ResponseWriter
	flusher http.Flusher
}

func (s *flushingSink) WriteText(text string) error {
	if _, err := s.writer.Write([]byte(text)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
