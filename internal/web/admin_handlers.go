package web

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/dualauth/internal/authkit"
)

type setRoleRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type setActiveStatusRequest struct {
	Email    string `json:"email"`
	IsActive *bool  `json:"isActive"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type forceLogoutRequest struct {
	UserID int64 `json:"userId"`
}

type userListQuery struct {
	Email            string `form:"email"`
	Role             string `form:"role"`
	IsEmailConfirmed *bool  `form:"is_email_confirmed"`
	IsActive         *bool  `form:"is_active"`
	Search           string `form:"search"`
	Limit            int    `form:"limit"`
	Offset           int    `form:"offset"`
}

// auditListQuery accepts the camelCase names browsers send and their snake_case aliases.
type auditListQuery struct {
	UserID        int64  `form:"userId"`
	UserIDSnake   int64  `form:"user_id"`
	Action        string `form:"action"`
	Email         string `form:"email"`
	Search        string `form:"search"`
	DateFrom      string `form:"dateFrom"`
	DateFromSnake string `form:"date_from"`
	DateTo        string `form:"dateTo"`
	DateToSnake   string `form:"date_to"`
	Limit         int    `form:"limit"`
	Offset        int    `form:"offset"`
}

func (query auditListQuery) filter() (authkit.AuditFilter, error) {
	dateFrom, fromErr := parseDateParameter(firstNonEmpty(query.DateFrom, query.DateFromSnake))
	if fromErr != nil {
		return authkit.AuditFilter{}, authkit.NewValidationError("Invalid date filter", fromErr)
	}
	dateTo, toErr := parseDateParameter(firstNonEmpty(query.DateTo, query.DateToSnake))
	if toErr != nil {
		return authkit.AuditFilter{}, authkit.NewValidationError("Invalid date filter", toErr)
	}
	filter := authkit.AuditFilter{
		Action:   query.Action,
		Email:    query.Email,
		Search:   query.Search,
		DateFrom: dateFrom,
		DateTo:   dateTo,
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	userID := query.UserID
	if userID <= 0 {
		userID = query.UserIDSnake
	}
	if userID > 0 {
		filter.UserID = &userID
	}
	return filter, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (api *API) handleSetRole(contextGin *gin.Context) {
	actor, _ := profileFromContext(contextGin)
	var request setRoleRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionSetRole, err, nil)
		return
	}
	updated, roleErr := api.service.SetUserRole(contextGin.Request.Context(), actor, request.Email, request.Role)
	if roleErr != nil {
		api.fail(contextGin, authkit.AuditActionSetRole, roleErr, map[string]any{"email": request.Email, "role": request.Role})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"message": "Role updated successfully", "result": updated})
}

func (api *API) handleSetUserActiveStatus(contextGin *gin.Context) {
	actor, _ := profileFromContext(contextGin)
	var request setActiveStatusRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionSetUserActiveStatus, err, nil)
		return
	}
	if request.IsActive == nil {
		api.fail(contextGin, authkit.AuditActionSetUserActiveStatus,
			authkit.NewValidationError("isActive must be a boolean", nil), map[string]any{"email": request.Email})
		return
	}
	updated, statusErr := api.service.SetUserActiveStatus(contextGin.Request.Context(), actor, request.Email, *request.IsActive)
	if statusErr != nil {
		api.fail(contextGin, authkit.AuditActionSetUserActiveStatus, statusErr,
			map[string]any{"email": request.Email, "isActive": *request.IsActive})
		return
	}
	message := "User deactivated successfully"
	if *request.IsActive {
		message = "User activated successfully"
	}
	contextGin.JSON(http.StatusOK, gin.H{"message": message, "result": updated})
}

func (api *API) handleDeleteUser(contextGin *gin.Context) {
	actor, _ := profileFromContext(contextGin)
	var request emailRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionDeleteUser, err, nil)
		return
	}
	if request.Email == "" {
		request.Email = contextGin.Query("email")
	}
	deleted, deleteErr := api.service.DeleteUser(contextGin.Request.Context(), actor, request.Email)
	if deleteErr != nil {
		api.fail(contextGin, authkit.AuditActionDeleteUser, deleteErr, map[string]any{"email": request.Email})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"message": "User deleted successfully", "result": deleted})
}

func (api *API) handleForceLogout(contextGin *gin.Context) {
	actor, _ := profileFromContext(contextGin)
	var request forceLogoutRequest
	if err := bindOptionalJSON(contextGin, &request); err != nil {
		api.fail(contextGin, authkit.AuditActionAdminLogout, err, nil)
		return
	}
	destroyed, logoutErr := api.service.ForceLogoutUser(contextGin.Request.Context(), actor, request.UserID)
	if logoutErr != nil {
		api.fail(contextGin, authkit.AuditActionAdminLogout, logoutErr, map[string]any{"userId": request.UserID})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"message": "User sessions terminated",
		"result":  gin.H{"userId": request.UserID, "destroyedSessions": destroyed},
	})
}

func (api *API) handleListUsers(contextGin *gin.Context) {
	var query userListQuery
	if err := contextGin.ShouldBindQuery(&query); err != nil {
		api.fail(contextGin, "list_users", authkit.NewValidationError("Invalid query parameters", err), nil)
		return
	}
	filter := authkit.UserFilter{
		Email:            query.Email,
		IsEmailConfirmed: query.IsEmailConfirmed,
		IsActive:         query.IsActive,
		Search:           query.Search,
		Limit:            query.Limit,
		Offset:           query.Offset,
	}
	if strings.TrimSpace(query.Role) != "" {
		role, roleErr := authkit.ParseRoleName(query.Role)
		if roleErr != nil {
			api.fail(contextGin, "list_users", roleErr, map[string]any{"role": query.Role})
			return
		}
		filter.Role = role
	}
	users, total, listErr := api.service.ListUsers(contextGin.Request.Context(), filter)
	if listErr != nil {
		api.fail(contextGin, "list_users", listErr, nil)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"users": users, "total": total})
}

func (api *API) handleListLogs(contextGin *gin.Context) {
	var query auditListQuery
	if err := contextGin.ShouldBindQuery(&query); err != nil {
		api.fail(contextGin, "list_logs", authkit.NewValidationError("Invalid query parameters", err), nil)
		return
	}
	filter, filterErr := query.filter()
	if filterErr != nil {
		api.fail(contextGin, "list_logs", filterErr, map[string]any{"dateFrom": query.DateFrom, "dateTo": query.DateTo})
		return
	}
	entries, total, listErr := api.service.ListAuditLogs(contextGin.Request.Context(), filter)
	if listErr != nil {
		api.fail(contextGin, "list_logs", listErr, nil)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"logs": entries, "total": total})
}

func (api *API) handleUserAudit(contextGin *gin.Context) {
	userID, parseErr := strconv.ParseInt(contextGin.Param("userId"), 10, 64)
	if parseErr != nil {
		api.fail(contextGin, "user_audit", authkit.NewValidationError("User id is required", parseErr),
			map[string]any{"userId": contextGin.Param("userId")})
		return
	}
	var query auditListQuery
	if err := contextGin.ShouldBindQuery(&query); err != nil {
		api.fail(contextGin, "user_audit", authkit.NewValidationError("Invalid query parameters", err), nil)
		return
	}
	filter, filterErr := query.filter()
	if filterErr != nil {
		api.fail(contextGin, "user_audit", filterErr, map[string]any{"dateFrom": query.DateFrom, "dateTo": query.DateTo})
		return
	}
	entries, total, listErr := api.service.UserAuditLogs(contextGin.Request.Context(), userID, filter)
	if listErr != nil {
		api.fail(contextGin, "user_audit", listErr, map[string]any{"userId": userID})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"logs": entries, "total": total})
}

// handleOnlineStatus reads optional ids from a comma separated userIds parameter or repeated userIds values.
// Without ids it reports every user.
func (api *API) handleOnlineStatus(contextGin *gin.Context) {
	var userIDs []int64
	for _, rawValue := range contextGin.QueryArray("userIds") {
		for _, part := range strings.Split(rawValue, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			userID, parseErr := strconv.ParseInt(trimmed, 10, 64)
			if parseErr != nil {
				api.fail(contextGin, "online_status", authkit.NewValidationError("userIds must be numeric", parseErr),
					map[string]any{"userIds": contextGin.QueryArray("userIds")})
				return
			}
			userIDs = append(userIDs, userID)
		}
	}
	statuses, statusErr := api.service.OnlineStatuses(contextGin.Request.Context(), userIDs)
	if statusErr != nil {
		api.fail(contextGin, "online_status", statusErr, nil)
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

func parseDateParameter(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(time.DateOnly, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}
