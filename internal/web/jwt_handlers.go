package web

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/dualauth/internal/authkit"
	"github.com/tyemirov/dualauth/pkg/tokenvalidator"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (request credentialsRequest) auditBody() map[string]any {
	return map[string]any{"email": request.Email, "role": request.Role, "password": request.Password}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// bindOptionalJSON decodes the body into target; an empty body leaves target untouched.
func bindOptionalJSON(contextGin *gin.Context, target any) error {
	if err := contextGin.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		return authkit.NewValidationError(messageInvalidBody, err)
	}
	return nil
}

func (api *API) handleJWTRegister(contextGin *gin.Context) {
	var request credentialsRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionRegister, err, nil)
		return
	}
	created, registerErr := api.service.Register(contextGin.Request.Context(), authkit.RegisterInput{
		Email:    request.Email,
		Password: request.Password,
		Role:     request.Role,
		Method:   authkit.MethodJWT,
	})
	if registerErr != nil {
		api.fail(contextGin, authkit.AuditActionRegister, registerErr, request.auditBody())
		return
	}
	contextGin.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "User registered successfully",
		"userId":  created.ID,
		"email":   created.Email,
	})
}

func (api *API) handleJWTLogin(contextGin *gin.Context) {
	var request credentialsRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionLogin, err, nil)
		return
	}
	result, loginErr := api.service.Login(contextGin.Request.Context(), request.Email, request.Password, authkit.MethodJWT)
	if loginErr != nil {
		api.fail(contextGin, authkit.AuditActionLogin, loginErr, request.auditBody())
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"success":      true,
		"user":         result.User,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
	})
}

func (api *API) handleJWTRefresh(contextGin *gin.Context) {
	var request refreshRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionJWTRefresh, err, nil)
		return
	}
	tokens, refreshErr := api.service.Refresh(contextGin.Request.Context(), request.RefreshToken)
	if refreshErr != nil {
		api.fail(contextGin, authkit.AuditActionJWTRefresh, refreshErr, nil)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"success":      true,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
	})
}

// handleJWTLogout only checks the access token signature so an expired or already revoked token still logs out.
func (api *API) handleJWTLogout(contextGin *gin.Context) {
	accessToken, headerErr := tokenvalidator.BearerToken(contextGin.Request)
	if headerErr != nil {
		api.fail(contextGin, authkit.AuditActionJWTLogout, authkit.NewAuthenticationError(messageAccessTokenRequired, headerErr), nil)
		return
	}
	var request refreshRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionJWTLogout, err, nil)
		return
	}
	if logoutErr := api.service.Logout(contextGin.Request.Context(), accessToken, request.RefreshToken); logoutErr != nil {
		api.fail(contextGin, authkit.AuditActionJWTLogout, logoutErr, nil)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (api *API) handleJWTProfile(contextGin *gin.Context) {
	profile, _ := profileFromContext(contextGin)
	user, profileErr := api.service.GetProfile(contextGin.Request.Context(), profile.ID)
	if profileErr != nil {
		api.fail(contextGin, "profile", profileErr, nil)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

func (api *API) handleJWTValidate(contextGin *gin.Context) {
	profile, _ := profileFromContext(contextGin)
	contextGin.JSON(http.StatusOK, gin.H{"success": true, "valid": true, "user": profile})
}
