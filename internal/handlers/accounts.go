package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/motorlist/internal/auth"
	"github.com/charlesng35/motorlist/internal/middleware"
	"github.com/charlesng35/motorlist/internal/models"
	"github.com/charlesng35/motorlist/internal/services"
	"github.com/charlesng35/motorlist/internal/store"
	"github.com/charlesng35/motorlist/pkg/errors"
	"github.com/charlesng35/motorlist/pkg/response"
)

// AccountHandler exposes registration, login and the activation and password
// reset token flows.
type AccountHandler struct {
	tokens   *services.AccountTokenService
	accounts store.AccountStore
	jwt      *iauth.JWTService
}

// NewAccountHandler constructs the handler for account and token endpoints.
func NewAccountHandler(tokens *services.AccountTokenService, accounts store.AccountStore, jwt *iauth.JWTService) *AccountHandler {
	return &AccountHandler{tokens: tokens, accounts: accounts, jwt: jwt}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=320"`
	Password    string `json:"password" validate:"required,min=8,max=128,password"`
	DisplayName string `json:"display_name" validate:"max=120"`
	Captcha     string `json:"captcha"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type emailRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Captcha string `json:"captcha"`
}

type confirmRequest struct {
	Email string `json:"email" form:"email" validate:"required,email"`
	Token string `json:"token" form:"token" validate:"required,notblank"`
}

type resetConfirmRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Token       string `json:"token" validate:"required,notblank"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=128,password"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *models.User `json:"user"`
}

// POST /api/auth/register
func (h *AccountHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, activation, err := h.tokens.Register(requestContext(c), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Captcha:     req.Captcha,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessMessage(c, http.StatusCreated, "Account created, check your email to activate it", gin.H{
		"user":       user,
		"activation": activation,
	})
}

// POST /api/auth/login
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.tokens.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Email: user.Email})
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.jwt.TTL().Seconds()),
		User:        user,
	})
}

// POST /api/auth/activation/resend
func (h *AccountHandler) ResendActivation(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.tokens.RequestActivation(requestContext(c), req.Email, req.Captcha)
	if err != nil {
		response.Error(c, err)
		return
	}

	message := "Activation email sent"
	if result.AlreadyActive {
		message = "Account is already active"
	}
	response.SuccessMessage(c, http.StatusOK, message, result)
}

// POST /api/auth/activation/confirm
func (h *AccountHandler) ConfirmActivation(c *gin.Context) {
	var req confirmRequest
	if !bindAndValidate(c, &req) {
		return
	}
	h.confirmActivation(c, req)
}

// GET /api/auth/activate?email=&token=
func (h *AccountHandler) ActivateLink(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, errors.NewBadRequest("invalid query parameters"))
		return
	}
	if !validateRequest(c, &req) {
		return
	}
	h.confirmActivation(c, req)
}

func (h *AccountHandler) confirmActivation(c *gin.Context, req confirmRequest) {
	result, err := h.tokens.ConfirmActivation(requestContext(c), req.Email, req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := "activated"
	if result.AlreadyActive {
		status = "already_active"
	}
	response.Success(c, http.StatusOK, gin.H{"status": status})
}

// POST /api/auth/password/reset
func (h *AccountHandler) RequestPasswordReset(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.tokens.RequestPasswordReset(requestContext(c), req.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessMessage(c, http.StatusOK, "Password reset email sent", result)
}

// POST /api/auth/password/reset/confirm
func (h *AccountHandler) ConfirmPasswordReset(c *gin.Context) {
	var req resetConfirmRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.tokens.ConfirmPasswordReset(requestContext(c), req.Email, req.Token, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "updated"})
}

// GET /api/auth/me
func (h *AccountHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.accounts.FindByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, services.ErrStoreUnavailable.WithInternal(err))
		return
	}
	if user == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, user)
}
