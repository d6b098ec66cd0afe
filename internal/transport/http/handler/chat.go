package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ollamachat/internal/app"
	"ollamachat/internal/transport/http/middleware"
	"ollamachat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateChatRequest struct {
	Title string `json:"title" binding:"required,max=128"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "title is required")
		return
	}

	chat, err := h.chatService.CreateChat(userID, req.Title)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrTitleRequired):
			response.Error(c, http.StatusBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, "create chat failed")
		}
		return
	}

	response.OK(c, http.StatusOK, "chat created successfully", chat)
}

func (h *ChatHandler) AllChats(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}

	chats, err := h.chatService.ListChats(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "list chats failed")
		return
	}

	response.OK(c, http.StatusOK, "chats fetched successfully", chats)
}

func (h *ChatHandler) SingleChat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}

	chatID, ok := chatIDFromParam(c)
	if !ok {
		return
	}

	chat, err := h.chatService.GetChat(c.Request.Context(), userID, chatID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrChatNotFound):
			response.Error(c, http.StatusNotFound, "chat not found")
		default:
			response.Error(c, http.StatusInternalServerError, "fetch chat failed")
		}
		return
	}

	response.OK(c, http.StatusOK, "chat fetched successfully", chat)
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}

	chatID, ok := chatIDFromParam(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteChat(c.Request.Context(), userID, chatID); err != nil {
		switch {
		case errors.Is(err, app.ErrChatNotFound):
			response.Error(c, http.StatusNotFound, "chat not found or unauthorized")
		default:
			response.Error(c, http.StatusInternalServerError, "delete chat failed")
		}
		return
	}

	response.OK(c, http.StatusOK, "chat and all associated messages deleted successfully", nil)
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	return userID, ok
}

func chatIDFromParam(c *gin.Context) (uint, bool) {
	chatID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || chatID64 == 0 {
		response.Error(c, http.StatusNotFound, "chat id not found")
		return 0, false
	}
	return uint(chatID64), true
}
