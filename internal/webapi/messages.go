package webapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ofertalabs/waboard/internal/webserver"
)

// filters the backend accepts verbatim on the messages listing
var messageFilterKeys = []string{"codCli", "phone", "state", "initiatedBy", "createdAt", "origin"}

func registerMessageRoutes() {
	webserver.ApiGET("/messages", listMessages, requireAuth)
}

// listMessages proxies the backend's paged message listing. Aliases are
// accepted for the pagination parameters: page for pageNumber, size for
// pageSize.
func listMessages(c echo.Context) error {
	pageNumber := firstParam(c, "pageNumber", "page")
	if pageNumber == "" {
		pageNumber = "1"
	}
	pageSize := firstParam(c, "pageSize", "size")
	if pageSize == "" {
		pageSize = "10"
	}
	if !positiveInt(pageNumber) || !positiveInt(pageSize) {
		return fail(c, http.StatusBadRequest, "INVALID_PAGINATION", "pageNumber and pageSize must be positive integers", nil)
	}

	query := map[string]string{
		"pageNumber": pageNumber,
		"pageSize":   pageSize,
	}
	for _, key := range messageFilterKeys {
		query[key] = c.QueryParam(key)
	}

	body, status, err := GetApp(c).Backend().Messages(c.Request().Context(), query, sessionAuthorization(c))
	if err != nil {
		return fail(c, http.StatusBadGateway, "BACKEND_ERROR", "Failed to fetch messages", err.Error())
	}
	return relay(c, body, status)
}

func firstParam(c echo.Context, names ...string) string {
	for _, name := range names {
		if v := c.QueryParam(name); v != "" {
			return v
		}
	}
	return ""
}

func positiveInt(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n >= 1
}
