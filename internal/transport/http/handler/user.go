package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ollamachat/internal/app"
	"ollamachat/internal/model"
	"ollamachat/internal/transport/http/middleware"
	"ollamachat/internal/transport/http/response"
)

type UserHandler struct {
	authService   *app.AuthService
	secureCookies bool
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func NewUserHandler(authService *app.AuthService, secureCookies bool) *UserHandler {
	return &UserHandler{authService: authService, secureCookies: secureCookies}
}

func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "all fields are required")
		return
	}

	user, err := h.authService.Register(app.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrEmailExists):
			response.Error(c, http.StatusBadRequest, "user already exists")
		default:
			response.Error(c, http.StatusInternalServerError, "register failed")
		}
		return
	}

	response.OK(c, http.StatusCreated, "user registered successfully", user)
}

func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "all fields are required")
		return
	}

	result, err := h.authService.Login(app.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrInvalidCredential):
			response.Error(c, http.StatusBadRequest, "invalid credentials")
		default:
			response.Error(c, http.StatusInternalServerError, "login failed")
		}
		return
	}

	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie("accessToken", result.AccessToken, 0, "/", "", h.secureCookies, true)
	c.SetCookie("refreshToken", result.RefreshToken, 0, "/", "", h.secureCookies, true)

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "user logged in successfully",
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"data":         result.User,
	})
}

// CurrentUser returns the account the auth middleware already resolved.
func (h *UserHandler) CurrentUser(c *gin.Context) {
	userAny, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}
	user, ok := userAny.(*model.User)
	if !ok {
		response.Error(c, http.StatusNotFound, "user not found")
		return
	}
	response.OK(c, http.StatusOK, "user fetched successfully", user)
}

func (h *UserHandler) AllUsers(c *gin.Context) {
	users, err := h.authService.ListUsers()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "fetch users failed")
		return
	}
	response.OK(c, http.StatusOK, "users fetched successfully", users)
}
