package webapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/internal/webserver"
)

func registerAuthRoutes() {
	webserver.ApiPOST("/auth/login", login)
	webserver.ApiPOST("/auth/logout", logout)
	webserver.ApiGET("/auth/session", currentSession, requireAuth)
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// login validates the credentials against the backend and stores the
// resulting Authorization value in the session cookie. The dashboard never
// persists the password itself.
func login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse login parameters", nil)
	}
	payload.Username = strings.TrimSpace(payload.Username)
	if payload.Username == "" || payload.Password == "" {
		return fail(c, http.StatusBadRequest, "MISSING_CREDENTIALS", "Username and password are required", nil)
	}

	appCtx := GetApp(c)
	result, err := appCtx.Backend().Auth(c.Request().Context(), payload.Username, payload.Password)
	if err != nil {
		zap.L().Warn("login rejected", zap.String("username", payload.Username), zap.Error(err))
		return fail(c, http.StatusUnauthorized, "LOGIN_FAILED", "Invalid username or password", nil)
	}

	sess, err := session.Get(webserver.SessionName, c)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "SESSION_ERROR", "Unable to open session", nil)
	}
	sess.Values[sessionKeyAuthorization] = result.Authorization
	sess.Values[sessionKeyUsername] = result.Username
	sess.Values[sessionKeyRole] = result.Role
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		return fail(c, http.StatusInternalServerError, "SESSION_ERROR", "Unable to save session", nil)
	}

	appCtx.WriteOpLog(result.Username, c.RealIP(), "login", "dashboard login")
	return ok(c, map[string]interface{}{
		"id":       result.ID,
		"username": result.Username,
		"role":     result.Role,
	})
}

func logout(c echo.Context) error {
	username := sessionUsername(c)
	sess, err := session.Get(webserver.SessionName, c)
	if err == nil {
		sess.Values = map[interface{}]interface{}{}
		sess.Options.MaxAge = -1
		_ = sess.Save(c.Request(), c.Response())
	}
	if username != "" {
		GetApp(c).WriteOpLog(username, c.RealIP(), "logout", "dashboard logout")
	}
	return ok(c, map[string]interface{}{"status": "ok"})
}

func currentSession(c echo.Context) error {
	sess, err := session.Get(webserver.SessionName, c)
	if err != nil {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Login required", nil)
	}
	username, _ := sess.Values[sessionKeyUsername].(string)
	role, _ := sess.Values[sessionKeyRole].(string)
	return ok(c, map[string]interface{}{"username": username, "role": role})
}
