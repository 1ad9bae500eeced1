package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ErlanBelekov/school-auth/internal/domain"
	"github.com/ErlanBelekov/school-auth/internal/transport/http/middleware"
	"github.com/ErlanBelekov/school-auth/internal/usecase"
	"github.com/gin-gonic/gin"
)

// The interfaces below are the subsets of the usecases the handler needs.
// Defined here (point of use) so tests can inject fakes.

type provisioner interface {
	Register(ctx context.Context, in usecase.RegisterInput) (*usecase.RegisterResult, error)
}

type verifier interface {
	Verify(ctx context.Context, email, code string) (*usecase.VerifyResult, error)
	Resend(ctx context.Context, email string) error
}

type loginer interface {
	Login(ctx context.Context, email, password string) (*usecase.LoginResult, error)
}

type recoverer interface {
	ForgotPassword(ctx context.Context, email string)
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
}

type AuthHandler struct {
	provision    provisioner
	verification verifier
	session      loginer
	recovery     recoverer
	logger       *slog.Logger
}

func NewAuthHandler(provision provisioner, verification verifier, session loginer, recovery recoverer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		provision:    provision,
		verification: verification,
		session:      session,
		recovery:     recovery,
		logger:       logger.With("component", "auth_handler"),
	}
}

type registerRequest struct {
	SchoolName     string              `json:"schoolName"     binding:"required,max=200"`
	Type           domain.SchoolType   `json:"type"           binding:"required,oneof=PRIVATE_JHS PRIVATE_SHS INTERNATIONAL_SHS"`
	Curricula      []domain.Curriculum `json:"curricula"      binding:"omitempty,dive,oneof=WASSCE IGCSE IB GES_STANDARD"`
	GESCode        *string             `json:"gesCode"        binding:"omitempty,max=64"`
	DigitalAddress string              `json:"digitalAddress" binding:"required,digital_address"`
	Region         string              `json:"region"         binding:"required"`
	City           string              `json:"city"           binding:"required"`
	AdminFirstName string              `json:"adminFirstName" binding:"required"`
	AdminLastName  string              `json:"adminLastName"  binding:"required"`
	AdminEmail     string              `json:"adminEmail"     binding:"required,email"`
	AdminPhone     string              `json:"adminPhone"     binding:"required,gh_phone"`
	Password       string              `json:"password"       binding:"required,min=8,max=72"`
}

type verifyOTPRequest struct {
	Email   string `json:"email"   binding:"required,email"`
	OTPCode string `json:"otpCode" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"       binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,max=72"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword"     binding:"required,max=72"`
}

type userResponse struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	FirstName string      `json:"firstName"`
	LastName  string      `json:"lastName"`
}

type sessionResponse struct {
	Message     string       `json:"message,omitempty"`
	AccessToken string       `json:"access_token"`
	User        userResponse `json:"user"`
}

func toUserResponse(a *domain.Account) userResponse {
	return userResponse{
		ID:        a.ID,
		Email:     a.Email,
		Role:      a.Role,
		FirstName: a.FirstName,
		LastName:  a.LastName,
	}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.provision.Register(c.Request.Context(), usecase.RegisterInput{
		SchoolName:     req.SchoolName,
		Type:           req.Type,
		Curricula:      req.Curricula,
		GESCode:        req.GESCode,
		DigitalAddress: req.DigitalAddress,
		Region:         req.Region,
		City:           req.City,
		AdminFirstName: req.AdminFirstName,
		AdminLastName:  req.AdminLastName,
		AdminEmail:     req.AdminEmail,
		AdminPhone:     req.AdminPhone,
		Password:       req.Password,
	})
	if err != nil {
		writeError(c, h.logger, "register school", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "School registered successfully. Please check your email for the verification OTP.",
		"schoolId": res.TenantID,
	})
}

// POST /auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.verification.Verify(c.Request.Context(), req.Email, req.OTPCode)
	if err != nil {
		writeError(c, h.logger, "verify otp", err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		Message:     "School verified successfully!",
		AccessToken: res.Token,
		User:        toUserResponse(res.Account),
	})
}

// POST /auth/resend-otp
func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.verification.Resend(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, "resend otp", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "New verification code has been sent to your email."})
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.session.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, "login", err)
		return
	}

	c.JSON(http.StatusOK, sessionResponse{
		AccessToken: res.Token,
		User:        toUserResponse(res.Account),
	})
}

// POST /auth/forgot-password
// Always 200 with the same body so callers cannot enumerate accounts.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.recovery.ForgotPassword(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{"message": usecase.ForgotPasswordMessage})
}

// POST /auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.recovery.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		writeError(c, h.logger, "reset password", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully."})
}

// POST /auth/change-password (authenticated)
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	identity, ok := middleware.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrMissingToken.Error()})
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.recovery.ChangePassword(c.Request.Context(), identity.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, h.logger, "change password", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully."})
}

// GET /auth/me (authenticated)
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := middleware.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrMissingToken.Error()})
		return
	}
	c.JSON(http.StatusOK, identity)
}
