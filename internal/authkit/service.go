package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	minimumPasswordLength = 6

	messageInvalidCredentials = "Invalid email or password"
	messageAccountDeactivated = "Account is deactivated"
	messageInvalidToken       = "Invalid or expired token"
	messageNotAuthenticated   = "Not authenticated"
	messageUserNotFound       = "User not found"
	messageInternal           = "Internal server error"
)

// Audit action tags.
const (
	AuditActionRegister            = "register"
	AuditActionLogin               = "login"
	AuditActionJWTLogout           = "jwt_logout"
	AuditActionLogout              = "logout"
	AuditActionJWTRefresh          = "jwt_refresh"
	AuditActionSetRole             = "set_role"
	AuditActionSetUserActiveStatus = "set_user_active_status"
	AuditActionDeleteUser          = "delete_user"
	AuditActionAdminLogout         = "admin_logout"
	AuditActionRegisterGoogle      = "register_google"
	AuditActionLoginGoogle         = "login_google"
	AuditActionError               = "error"
)

// Credential flow labels recorded in audit details.
const (
	MethodJWT     = "jwt"
	MethodSession = "session"
	MethodGoogle  = "google"
)

var errMissingServiceDependency = errors.New("auth_service.missing_dependency")

// ServiceConfig wires the orchestrator's collaborators.
type ServiceConfig struct {
	Credentials CredentialStore
	Audit       AuditLog
	Passwords   PasswordHasher
	Issuer      *Issuer
	Verifier    *Verifier
	Revocations RevocationRegistry
	Sessions    SessionRegistry
	SessionTTL  time.Duration
	Metrics     MetricsRecorder
	Logger      *zap.Logger
	Clock       Clock
}

// Service coordinates credential checks, token lifecycle, sessions, and audit.
type Service struct {
	credentials CredentialStore
	audit       AuditLog
	passwords   PasswordHasher
	issuer      *Issuer
	verifier    *Verifier
	revocations RevocationRegistry
	sessions    SessionRegistry
	sessionTTL  time.Duration
	metrics     MetricsRecorder
	logger      *zap.Logger
	clock       Clock
}

// NewService validates the wiring and returns a Service.
func NewService(configuration ServiceConfig) (*Service, error) {
	if configuration.Credentials == nil || configuration.Audit == nil || configuration.Issuer == nil ||
		configuration.Verifier == nil || configuration.Revocations == nil || configuration.Sessions == nil {
		return nil, errMissingServiceDependency
	}
	if configuration.SessionTTL <= 0 {
		return nil, fmt.Errorf("auth_service.new: %w", errNonPositiveSessionTTL)
	}
	passwords := configuration.Passwords
	if passwords == nil {
		passwords = NewBcryptHasher(DefaultBcryptCost)
	}
	metrics := configuration.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := configuration.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := configuration.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{
		credentials: configuration.Credentials,
		audit:       configuration.Audit,
		passwords:   passwords,
		issuer:      configuration.Issuer,
		verifier:    configuration.Verifier,
		revocations: configuration.Revocations,
		sessions:    configuration.Sessions,
		sessionTTL:  configuration.SessionTTL,
		metrics:     metrics,
		logger:      logger,
		clock:       clock,
	}, nil
}

// RegisterInput is the payload of both registration routes.
type RegisterInput struct {
	Email    string
	Password string
	Role     string
	Method   string
}

// LoginResult is a checked identity plus a freshly minted pair.
type LoginResult struct {
	User   UserView
	Tokens TokenPair
}

// EstablishedSession is a created cookie session.
type EstablishedSession struct {
	SessionID string
	ExpiresAt time.Time
	Profile   Profile
}

// Register creates an active, confirmed user. It never issues tokens.
func (service *Service) Register(ctx context.Context, input RegisterInput) (UserView, error) {
	email := NormalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return UserView{}, NewValidationError("Email and password are required", nil)
	}
	if !looksLikeEmail(email) {
		return UserView{}, NewValidationError("Invalid email address", nil)
	}
	if len(input.Password) < minimumPasswordLength {
		return UserView{}, NewValidationError(fmt.Sprintf("Password must be at least %d characters", minimumPasswordLength), nil)
	}
	roleName, roleErr := ParseRoleName(input.Role)
	if roleErr != nil {
		return UserView{}, roleErr
	}
	role, findRoleErr := service.credentials.FindRoleByName(ctx, roleName)
	if findRoleErr != nil {
		if errors.Is(findRoleErr, ErrRoleNotFound) {
			return UserView{}, NewValidationError("Role not found", findRoleErr)
		}
		return UserView{}, NewDependencyError(messageInternal, findRoleErr)
	}
	if _, lookupErr := service.credentials.FindUserByEmail(ctx, email); lookupErr == nil {
		return UserView{}, NewConflictError("User already exists", ErrUserExists)
	} else if !errors.Is(lookupErr, ErrUserNotFound) {
		return UserView{}, NewDependencyError(messageInternal, lookupErr)
	}
	passwordHash, hashErr := service.passwords.Hash(input.Password)
	if hashErr != nil {
		return UserView{}, NewDependencyError(messageInternal, hashErr)
	}
	created, insertErr := service.credentials.InsertUser(ctx, NewUser{
		Email:            email,
		PasswordHash:     passwordHash,
		RoleID:           role.ID,
		IsEmailConfirmed: true,
		IsActive:         true,
	})
	if insertErr != nil {
		if errors.Is(insertErr, ErrUserExists) {
			return UserView{}, NewConflictError("User already exists", insertErr)
		}
		return UserView{}, NewDependencyError(messageInternal, insertErr)
	}
	service.appendAudit(ctx, &created.ID, AuditActionRegister, map[string]any{
		"email":  created.Email,
		"role":   role.Name,
		"method": methodOrDefault(input.Method),
	})
	service.metrics.Increment(metricRegisterSuccess)
	return newUserView(created, role.Name), nil
}

// Login checks credentials and always mints a fresh pair. Session creation is left to EstablishSession.
func (service *Service) Login(ctx context.Context, email string, password string, method string) (LoginResult, error) {
	normalizedEmail := NormalizeEmail(email)
	if normalizedEmail == "" || password == "" {
		return LoginResult{}, NewValidationError("Email and password are required", nil)
	}
	user, lookupErr := service.credentials.FindUserByEmail(ctx, normalizedEmail)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrUserNotFound) {
			service.metrics.Increment(metricLoginFailure)
			return LoginResult{}, NewAuthenticationError(messageInvalidCredentials, lookupErr)
		}
		return LoginResult{}, NewDependencyError(messageInternal, lookupErr)
	}
	if !user.IsActive {
		service.metrics.Increment(metricLoginFailure)
		service.logger.Info("login rejected for deactivated account", zap.String("code", "auth.login.inactive"), zap.Int64("user_id", user.ID))
		return LoginResult{}, NewAuthenticationError(messageAccountDeactivated, nil)
	}
	role, roleErr := service.credentials.FindRoleByID(ctx, user.RoleID)
	if roleErr != nil {
		return LoginResult{}, NewDependencyError(messageInternal, roleErr)
	}
	if !service.passwords.Compare(user.PasswordHash, password) {
		service.metrics.Increment(metricLoginFailure)
		return LoginResult{}, NewAuthenticationError(messageInvalidCredentials, nil)
	}
	view := newUserView(user, role.Name)
	tokens, issueErr := service.issuer.Issue(view.Profile())
	if issueErr != nil {
		return LoginResult{}, NewDependencyError(messageInternal, issueErr)
	}
	service.appendAudit(ctx, &user.ID, AuditActionLogin, map[string]any{
		"email":  user.Email,
		"method": methodOrDefault(method),
	})
	service.metrics.Increment(metricLoginSuccess)
	return LoginResult{User: view, Tokens: tokens}, nil
}

// EstablishSession snapshots profile into a new cookie session.
func (service *Service) EstablishSession(ctx context.Context, profile Profile) (EstablishedSession, error) {
	sessionID, randomErr := NewSessionID()
	if randomErr != nil {
		return EstablishedSession{}, NewDependencyError(messageInternal, randomErr)
	}
	if err := service.sessions.Create(ctx, sessionID, profile, service.sessionTTL); err != nil {
		return EstablishedSession{}, NewDependencyError(messageInternal, err)
	}
	service.metrics.Increment(metricSessionCreated)
	return EstablishedSession{
		SessionID: sessionID,
		ExpiresAt: service.clock.Now().UTC().Add(service.sessionTTL),
		Profile:   profile,
	}, nil
}

// AuthenticateSession returns the profile snapshot stored with the session.
func (service *Service) AuthenticateSession(ctx context.Context, sessionID string) (Profile, error) {
	if strings.TrimSpace(sessionID) == "" {
		return Profile{}, NewAuthenticationError(messageNotAuthenticated, ErrSessionNotFound)
	}
	session, err := service.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Profile{}, NewAuthenticationError(messageNotAuthenticated, err)
		}
		return Profile{}, NewDependencyError(messageInternal, err)
	}
	return session.Profile, nil
}

// DestroySession ends one cookie session.
func (service *Service) DestroySession(ctx context.Context, sessionID string, actor Profile) error {
	if err := service.sessions.Destroy(ctx, sessionID); err != nil {
		return NewDependencyError(messageInternal, err)
	}
	service.appendAudit(ctx, &actor.ID, AuditActionLogout, map[string]any{"method": MethodSession})
	service.metrics.Increment(metricLogout)
	return nil
}

// Refresh consumes refreshToken exactly once and returns a new pair for the same identity.
func (service *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return TokenPair{}, NewValidationError("Refresh token required", nil)
	}
	claims, verifyErr := service.verifier.Verify(ctx, refreshToken, PurposeRefresh)
	if verifyErr != nil {
		service.metrics.Increment(metricRefreshRejected)
		service.logUnavailable(verifyErr, "auth.refresh.revocation_unavailable")
		return TokenPair{}, NewAuthenticationError(messageInvalidToken, verifyErr)
	}
	user, lookupErr := service.credentials.FindUserByID(ctx, claims.UserID)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrUserNotFound) {
			service.metrics.Increment(metricRefreshRejected)
			return TokenPair{}, NewAuthenticationError(messageInvalidToken, lookupErr)
		}
		return TokenPair{}, NewDependencyError(messageInternal, lookupErr)
	}
	if !user.IsActive {
		service.metrics.Increment(metricRefreshRejected)
		return TokenPair{}, NewAuthenticationError(messageAccountDeactivated, nil)
	}
	role, roleErr := service.credentials.FindRoleByID(ctx, user.RoleID)
	if roleErr != nil {
		return TokenPair{}, NewDependencyError(messageInternal, roleErr)
	}
	tokens, issueErr := service.issuer.Issue(newUserView(user, role.Name).Profile())
	if issueErr != nil {
		return TokenPair{}, NewDependencyError(messageInternal, issueErr)
	}
	consumed, revokeErr := service.revocations.RevokeOnce(ctx, claims.TokenID(), claims.GetExpiresAt())
	if revokeErr != nil {
		service.metrics.Increment(metricRefreshRejected)
		service.logUnavailable(revokeErr, "auth.refresh.revocation_unavailable")
		return TokenPair{}, NewAuthenticationError(messageInvalidToken, errors.Join(ErrInvalidToken, revokeErr))
	}
	if !consumed {
		service.metrics.Increment(metricRefreshReplay)
		service.logger.Warn("refresh token replayed", zap.String("code", "auth.refresh.replay"), zap.Int64("user_id", user.ID))
		return TokenPair{}, NewAuthenticationError(messageInvalidToken, ErrInvalidToken)
	}
	service.appendAudit(ctx, &user.ID, AuditActionJWTRefresh, map[string]any{"method": MethodJWT})
	service.metrics.Increment(metricRefreshSuccess)
	return tokens, nil
}

// Logout revokes the access token and, when its signature checks out, the refresh token.
// Expired and already revoked tokens are accepted so repeated calls succeed.
func (service *Service) Logout(ctx context.Context, accessToken string, refreshToken string) error {
	accessClaims, decodeErr := service.verifier.Decode(accessToken, PurposeAccess)
	if decodeErr != nil {
		return NewAuthenticationError(messageInvalidToken, decodeErr)
	}
	if err := service.revocations.Revoke(ctx, accessClaims.TokenID(), accessClaims.GetExpiresAt()); err != nil {
		return NewDependencyError(messageInternal, err)
	}
	hasRefreshToken := strings.TrimSpace(refreshToken) != ""
	if hasRefreshToken {
		refreshClaims, refreshDecodeErr := service.verifier.Decode(refreshToken, PurposeRefresh)
		if refreshDecodeErr == nil && refreshClaims.UserID == accessClaims.UserID {
			if err := service.revocations.Revoke(ctx, refreshClaims.TokenID(), refreshClaims.GetExpiresAt()); err != nil {
				return NewDependencyError(messageInternal, err)
			}
		}
	}
	actorID := accessClaims.UserID
	service.appendAudit(ctx, &actorID, AuditActionJWTLogout, map[string]any{
		"method":          MethodJWT,
		"hasRefreshToken": hasRefreshToken,
	})
	service.metrics.Increment(metricLogout)
	return nil
}

// AuthenticateAccessToken verifies a bearer token and rejects deleted or deactivated users.
// The returned role is the snapshot carried by the token.
func (service *Service) AuthenticateAccessToken(ctx context.Context, accessToken string) (Profile, error) {
	claims, verifyErr := service.verifier.Verify(ctx, accessToken, PurposeAccess)
	if verifyErr != nil {
		service.logUnavailable(verifyErr, "auth.access.revocation_unavailable")
		return Profile{}, NewAuthenticationError(messageInvalidToken, verifyErr)
	}
	profile, profileErr := ProfileFromClaims(claims)
	if profileErr != nil {
		return Profile{}, NewAuthenticationError(messageInvalidToken, profileErr)
	}
	user, lookupErr := service.credentials.FindUserByID(ctx, claims.UserID)
	if lookupErr != nil {
		if errors.Is(lookupErr, ErrUserNotFound) {
			return Profile{}, NewAuthenticationError(messageInvalidToken, lookupErr)
		}
		return Profile{}, NewDependencyError(messageInternal, lookupErr)
	}
	if !user.IsActive {
		return Profile{}, NewAuthenticationError(messageAccountDeactivated, nil)
	}
	profile.IsActive = user.IsActive
	profile.IsEmailConfirmed = user.IsEmailConfirmed
	return profile, nil
}

// GetProfile loads the current stored view of userID.
func (service *Service) GetProfile(ctx context.Context, userID int64) (UserView, error) {
	user, lookupErr := service.credentials.FindUserByID(ctx, userID)
	if lookupErr != nil {
		return UserView{}, service.userLookupError(lookupErr)
	}
	role, roleErr := service.credentials.FindRoleByID(ctx, user.RoleID)
	if roleErr != nil {
		return UserView{}, NewDependencyError(messageInternal, roleErr)
	}
	return newUserView(user, role.Name), nil
}

// CompleteGoogleLogin resolves or creates the user for a verified Google identity and opens a cookie session.
// Accounts created here have no password, so password login for them always fails.
func (service *Service) CompleteGoogleLogin(ctx context.Context, identity GoogleIdentity) (EstablishedSession, error) {
	email := NormalizeEmail(identity.Email)
	if email == "" {
		return EstablishedSession{}, NewAuthenticationError("Google account has no verified email", nil)
	}
	user, lookupErr := service.credentials.FindUserByEmail(ctx, email)
	action := AuditActionLoginGoogle
	switch {
	case lookupErr == nil:
		if !user.IsActive {
			return EstablishedSession{}, NewAuthenticationError(messageAccountDeactivated, nil)
		}
	case errors.Is(lookupErr, ErrUserNotFound):
		defaultRole, roleErr := service.credentials.FindRoleByName(ctx, RoleUser)
		if roleErr != nil {
			return EstablishedSession{}, NewDependencyError(messageInternal, roleErr)
		}
		created, insertErr := service.credentials.InsertUser(ctx, NewUser{
			Email:            email,
			RoleID:           defaultRole.ID,
			IsEmailConfirmed: true,
			IsActive:         true,
		})
		switch {
		case insertErr == nil:
			user = created
			action = AuditActionRegisterGoogle
		case errors.Is(insertErr, ErrUserExists):
			// A concurrent callback created the account first.
			existing, refetchErr := service.credentials.FindUserByEmail(ctx, email)
			if refetchErr != nil {
				return EstablishedSession{}, NewDependencyError(messageInternal, refetchErr)
			}
			if !existing.IsActive {
				return EstablishedSession{}, NewAuthenticationError(messageAccountDeactivated, nil)
			}
			user = existing
		default:
			return EstablishedSession{}, NewDependencyError(messageInternal, insertErr)
		}
	default:
		return EstablishedSession{}, NewDependencyError(messageInternal, lookupErr)
	}
	role, roleErr := service.credentials.FindRoleByID(ctx, user.RoleID)
	if roleErr != nil {
		return EstablishedSession{}, NewDependencyError(messageInternal, roleErr)
	}
	established, sessionErr := service.EstablishSession(ctx, newUserView(user, role.Name).Profile())
	if sessionErr != nil {
		return EstablishedSession{}, sessionErr
	}
	service.appendAudit(ctx, &user.ID, action, map[string]any{"email": user.Email, "method": MethodGoogle})
	service.metrics.Increment(metricGoogleLogin)
	return established, nil
}

// SetUserRole changes the role of the user with email. Existing tokens and sessions keep their snapshot.
func (service *Service) SetUserRole(ctx context.Context, actor Profile, email string, roleValue string) (UserView, error) {
	normalizedEmail := NormalizeEmail(email)
	if normalizedEmail == "" || strings.TrimSpace(roleValue) == "" {
		return UserView{}, NewValidationError("Email and role are required", nil)
	}
	roleName, parseErr := ParseRoleName(roleValue)
	if parseErr != nil {
		return UserView{}, parseErr
	}
	user, lookupErr := service.credentials.FindUserByEmail(ctx, normalizedEmail)
	if lookupErr != nil {
		return UserView{}, service.userLookupError(lookupErr)
	}
	newRole, findRoleErr := service.credentials.FindRoleByName(ctx, roleName)
	if findRoleErr != nil {
		if errors.Is(findRoleErr, ErrRoleNotFound) {
			return UserView{}, NewValidationError("Role not found", findRoleErr)
		}
		return UserView{}, NewDependencyError(messageInternal, findRoleErr)
	}
	if user.RoleID == newRole.ID {
		return UserView{}, NewValidationError("User already has this role", nil)
	}
	oldRole, oldRoleErr := service.credentials.FindRoleByID(ctx, user.RoleID)
	if oldRoleErr != nil {
		return UserView{}, NewDependencyError(messageInternal, oldRoleErr)
	}
	if err := service.credentials.UpdateUserRole(ctx, user.ID, newRole.ID); err != nil {
		return UserView{}, service.userLookupError(err)
	}
	service.appendAudit(ctx, &actor.ID, AuditActionSetRole, map[string]any{
		"target_email":        user.Email,
		"target_user_id":      user.ID,
		"old_role":            oldRole.Name,
		"new_role":            newRole.Name,
		"changed_by_admin_id": actor.ID,
	})
	return service.GetProfile(ctx, user.ID)
}

// SetUserActiveStatus toggles the active flag. Deactivation also ends every session of the user.
func (service *Service) SetUserActiveStatus(ctx context.Context, actor Profile, email string, isActive bool) (UserView, error) {
	normalizedEmail := NormalizeEmail(email)
	if normalizedEmail == "" {
		return UserView{}, NewValidationError("Email is required", nil)
	}
	user, lookupErr := service.credentials.FindUserByEmail(ctx, normalizedEmail)
	if lookupErr != nil {
		return UserView{}, service.userLookupError(lookupErr)
	}
	if !isActive && user.ID == actor.ID {
		return UserView{}, NewValidationError("You cannot deactivate your own account", nil)
	}
	if user.IsActive == isActive {
		if isActive {
			return UserView{}, NewValidationError("User is already active", nil)
		}
		return UserView{}, NewValidationError("User is already deactivated", nil)
	}
	if err := service.credentials.UpdateUserActive(ctx, user.ID, isActive); err != nil {
		return UserView{}, service.userLookupError(err)
	}
	details := map[string]any{"target_email": user.Email, "is_active": isActive}
	if !isActive {
		destroyed, destroyErr := service.sessions.DestroyAllForUser(ctx, user.ID)
		if destroyErr != nil {
			return UserView{}, NewDependencyError(messageInternal, destroyErr)
		}
		details["destroyed_sessions"] = destroyed
		service.metrics.Increment(metricSessionsForceClosed)
	}
	service.appendAudit(ctx, &actor.ID, AuditActionSetUserActiveStatus, details)
	return service.GetProfile(ctx, user.ID)
}

// DeleteUser hard-deletes the user with email and ends their sessions.
func (service *Service) DeleteUser(ctx context.Context, actor Profile, email string) (UserView, error) {
	normalizedEmail := NormalizeEmail(email)
	if normalizedEmail == "" {
		return UserView{}, NewValidationError("Email is required", nil)
	}
	user, lookupErr := service.credentials.FindUserByEmail(ctx, normalizedEmail)
	if lookupErr != nil {
		return UserView{}, service.userLookupError(lookupErr)
	}
	if user.ID == actor.ID {
		return UserView{}, NewValidationError("You cannot delete your own account", nil)
	}
	role, roleErr := service.credentials.FindRoleByID(ctx, user.RoleID)
	if roleErr != nil {
		return UserView{}, NewDependencyError(messageInternal, roleErr)
	}
	if _, err := service.sessions.DestroyAllForUser(ctx, user.ID); err != nil {
		return UserView{}, NewDependencyError(messageInternal, err)
	}
	if err := service.credentials.DeleteUser(ctx, user.ID); err != nil {
		return UserView{}, service.userLookupError(err)
	}
	service.appendAudit(ctx, &actor.ID, AuditActionDeleteUser, map[string]any{
		"target_email":   user.Email,
		"target_user_id": user.ID,
	})
	return newUserView(user, role.Name), nil
}

// ForceLogoutUser destroys every cookie session of userID and returns the count.
// Sessions created concurrently with the sweep may survive it.
func (service *Service) ForceLogoutUser(ctx context.Context, actor Profile, userID int64) (int64, error) {
	if userID <= 0 {
		return 0, NewValidationError("User id is required", nil)
	}
	if _, lookupErr := service.credentials.FindUserByID(ctx, userID); lookupErr != nil {
		return 0, service.userLookupError(lookupErr)
	}
	destroyed, destroyErr := service.sessions.DestroyAllForUser(ctx, userID)
	if destroyErr != nil {
		return 0, NewDependencyError(messageInternal, destroyErr)
	}
	service.appendAudit(ctx, &actor.ID, AuditActionAdminLogout, map[string]any{
		"target_user_id":     userID,
		"destroyed_sessions": destroyed,
	})
	service.metrics.Increment(metricSessionsForceClosed)
	return destroyed, nil
}

// OnlineStatuses reports whether each user has a live cookie session.
// OnlineStatuses reports for each id whether it holds a live session. No ids means every user.
func (service *Service) OnlineStatuses(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	if len(userIDs) == 0 {
		allUserIDs, listErr := service.credentials.ListUserIDs(ctx)
		if listErr != nil {
			return nil, NewDependencyError(messageInternal, listErr)
		}
		userIDs = allUserIDs
	}
	statuses, err := service.sessions.OnlineStatuses(ctx, userIDs)
	if err != nil {
		return nil, NewDependencyError(messageInternal, err)
	}
	return statuses, nil
}

// ListUsers returns one page of users and the total match count.
func (service *Service) ListUsers(ctx context.Context, filter UserFilter) ([]UserView, int64, error) {
	filter.Email = NormalizeEmail(filter.Email)
	users, total, err := service.credentials.ListUsers(ctx, filter)
	if err != nil {
		return nil, 0, NewDependencyError(messageInternal, err)
	}
	return users, total, nil
}

// ListAuditLogs returns one page of audit entries, newest first.
func (service *Service) ListAuditLogs(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error) {
	entries, total, err := service.audit.List(ctx, filter)
	if err != nil {
		return nil, 0, NewDependencyError(messageInternal, err)
	}
	return entries, total, nil
}

// UserAuditLogs returns the audit entries written by userID.
// The filter's own UserID is replaced by userID.
func (service *Service) UserAuditLogs(ctx context.Context, userID int64, filter AuditFilter) ([]AuditEntry, int64, error) {
	if userID <= 0 {
		return nil, 0, NewValidationError("User id is required", nil)
	}
	filter.UserID = &userID
	return service.ListAuditLogs(ctx, filter)
}

// RecordFailure writes the "error" audit entry for a failed action. Password fields are never recorded.
func (service *Service) RecordFailure(ctx context.Context, actorID *int64, action string, failure error, body map[string]any) {
	service.appendAudit(ctx, actorID, AuditActionError, map[string]any{
		"action": action,
		"error":  MessageOf(failure),
		"body":   redactBody(body),
	})
	if KindOf(failure) == KindDependency {
		service.logger.Error("request failed", zap.String("code", "auth.dependency_failure"), zap.String("action", action), zap.Error(failure))
	}
}

func (service *Service) appendAudit(ctx context.Context, actorID *int64, action string, details map[string]any) {
	if err := service.audit.Append(ctx, actorID, action, details); err != nil {
		service.logger.Warn("audit append failed", zap.String("code", "audit.append_failed"), zap.String("action", action), zap.Error(err))
	}
}

func (service *Service) userLookupError(err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return NewNotFoundError(messageUserNotFound, err)
	}
	return NewDependencyError(messageInternal, err)
}

func (service *Service) logUnavailable(err error, code string) {
	if errors.Is(err, ErrRevocationUnavailable) {
		service.logger.Error("revocation registry unavailable", zap.String("code", code), zap.Error(err))
	}
}

func redactBody(body map[string]any) map[string]any {
	if len(body) == 0 {
		return map[string]any{}
	}
	redacted := make(map[string]any, len(body))
	for key, value := range body {
		lowered := strings.ToLower(key)
		if strings.Contains(lowered, "password") || strings.Contains(lowered, "token") {
			continue
		}
		redacted[key] = value
	}
	return redacted
}

func looksLikeEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func methodOrDefault(method string) string {
	if strings.TrimSpace(method) == "" {
		return MethodJWT
	}
	return method
}
