package webapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/ofertalabs/waboard/internal/app"
	"github.com/ofertalabs/waboard/internal/webserver"
)

const (
	sessionKeyAuthorization = "authorization"
	sessionKeyUsername      = "username"
	sessionKeyRole          = "role"
)

// Register wires every dashboard API route.
func Register() {
	registerAuthRoutes()
	registerConversationRoutes()
	registerMessageRoutes()
	registerUserRoutes()
	registerWhatsAppRoutes()
	registerHubRoutes()
	registerOplogRoutes()
}

// GetApp recovers the application stashed by the webserver middleware.
func GetApp(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

// GetDB returns the application's database handle.
func GetDB(c echo.Context) *gorm.DB {
	return GetApp(c).DB()
}

// sessionAuthorization reads the backend Authorization value stored at login.
// Empty means not logged in.
func sessionAuthorization(c echo.Context) string {
	sess, err := session.Get(webserver.SessionName, c)
	if err != nil {
		return ""
	}
	v, _ := sess.Values[sessionKeyAuthorization].(string)
	return v
}

func sessionUsername(c echo.Context) string {
	sess, err := session.Get(webserver.SessionName, c)
	if err != nil {
		return ""
	}
	v, _ := sess.Values[sessionKeyUsername].(string)
	return v
}

// requireAuth rejects requests without a logged-in session.
func requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if sessionAuthorization(c) == "" {
			return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Login required", nil)
		}
		return next(c)
	}
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

func fail(c echo.Context, status int, code, message string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":    code,
		"message": message,
		"detail":  detail,
	})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":     data,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

func parsePagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("perPage"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// relay writes an upstream response through unchanged. Upstream bodies are
// JSON; an empty body becomes an empty object so clients always get JSON.
func relay(c echo.Context, body []byte, status int) error {
	if len(body) == 0 {
		body = []byte("{}")
	}
	return c.Blob(status, echo.MIMEApplicationJSON, body)
}
