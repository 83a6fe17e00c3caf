package webserver

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/internal/app"
)

const (
	// AppContextKey stashes the application in the echo context for handlers.
	AppContextKey = "waboard_app"
	// SessionName is the cookie session holding the login state.
	SessionName = "waboard_session"
	// SessionMaxAge keeps logins valid for eight hours.
	SessionMaxAge = 8 * 60 * 60
)

var server *WebServer

type WebServer struct {
	appCtx app.AppContext
	root   *echo.Echo
}

// Init builds the echo server, installs session and logging middleware and
// stashes the application in every request context.
func Init(appCtx app.AppContext) *WebServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Skipper: func(c echo.Context) bool {
			// never compress the event stream, it must flush per frame
			return c.Request().Header.Get("Accept") == "text/event-stream"
		},
	}))

	store := sessions.NewCookieStore([]byte(appCtx.Config().Web.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   SessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	e.Use(session.Middleware(store))

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(AppContextKey, appCtx)
			return next(c)
		}
	})

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		if code >= http.StatusInternalServerError {
			zap.L().Error("webserver error",
				zap.String("path", c.Path()), zap.Int("status", code), zap.Error(err))
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"code": code, "message": err.Error()})
		}
	}

	server = &WebServer{appCtx: appCtx, root: e}
	return server
}

// Listen starts serving and blocks.
func (s *WebServer) Listen() error {
	cfg := s.appCtx.Config().Web
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	zap.L().Info("webserver listening", zap.String("addr", addr))
	return s.root.Start(addr)
}

// Shutdown stops accepting requests and drains in-flight ones.
func (s *WebServer) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}

// Echo exposes the underlying router (used in tests).
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

// Route helpers keep handler registrations under the /api/v1 prefix without
// every package repeating it.

func ApiGET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	server.root.GET("/api/v1"+path, h, m...)
}

func ApiPOST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	server.root.POST("/api/v1"+path, h, m...)
}

func ApiPUT(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	server.root.PUT("/api/v1"+path, h, m...)
}

func ApiDELETE(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) {
	server.root.DELETE("/api/v1"+path, h, m...)
}
