package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ofertalabs/waboard/internal/webserver"
)

func registerHubRoutes() {
	webserver.ApiGET("/hub-url", getHubURL, requireAuth)
	webserver.ApiGET("/hub/status", getHubStatus, requireAuth)
}

// getHubURL exposes the derived hub endpoint so clients wanting their own
// connection can reach it without knowing the backend topology.
func getHubURL(c echo.Context) error {
	url, err := GetApp(c).Backend().HubURL(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusServiceUnavailable, "HUB_UNAVAILABLE", "No hub endpoint available", err.Error())
	}
	return ok(c, map[string]interface{}{"hubUrl": url})
}

func getHubStatus(c echo.Context) error {
	m := GetApp(c).Hub()
	return ok(c, map[string]interface{}{
		"state":      m.State().String(),
		"reconnects": m.Reconnects(),
	})
}
