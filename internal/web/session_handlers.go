package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/dualauth/internal/authkit"
)

func (api *API) handleSessionRegister(contextGin *gin.Context) {
	var request credentialsRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionRegister, err, nil)
		return
	}
	created, registerErr := api.service.Register(contextGin.Request.Context(), authkit.RegisterInput{
		Email:    request.Email,
		Password: request.Password,
		Role:     request.Role,
		Method:   authkit.MethodSession,
	})
	if registerErr != nil {
		api.fail(contextGin, authkit.AuditActionRegister, registerErr, request.auditBody())
		return
	}
	contextGin.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"userId":  created.ID,
		"email":   created.Email,
	})
}

func (api *API) handleSessionLogin(contextGin *gin.Context) {
	var request credentialsRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionLogin, err, nil)
		return
	}
	ctx := contextGin.Request.Context()
	result, loginErr := api.service.Login(ctx, request.Email, request.Password, authkit.MethodSession)
	if loginErr != nil {
		api.fail(contextGin, authkit.AuditActionLogin, loginErr, request.auditBody())
		return
	}
	established, sessionErr := api.service.EstablishSession(ctx, result.User.Profile())
	if sessionErr != nil {
		api.fail(contextGin, authkit.AuditActionLogin, sessionErr, request.auditBody())
		return
	}
	writeSessionCookie(contextGin, api.cookies, established.SessionID, established.ExpiresAt)
	contextGin.JSON(http.StatusOK, gin.H{"message": "Login successful", "user": result.User})
}

func (api *API) handleSessionMe(contextGin *gin.Context) {
	profile, _ := profileFromContext(contextGin)
	user, profileErr := api.service.GetProfile(contextGin.Request.Context(), profile.ID)
	if profileErr != nil {
		api.fail(contextGin, "me", profileErr, nil)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"user": user})
}

func (api *API) handleSessionLogout(contextGin *gin.Context) {
	profile, _ := profileFromContext(contextGin)
	sessionID := contextGin.GetString(sessionIDContextKey)
	if destroyErr := api.service.DestroySession(contextGin.Request.Context(), sessionID, profile); destroyErr != nil {
		api.fail(contextGin, authkit.AuditActionLogout, destroyErr, nil)
		return
	}
	clearCookie(contextGin, api.cookies, api.cookies.Name, "/")
	contextGin.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}
