package webapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ofertalabs/waboard/internal/webserver"
)

func registerUserRoutes() {
	webserver.ApiGET("/users", listUsers, requireAuth)
	webserver.ApiPOST("/users", createUser, requireAuth)
	webserver.ApiPUT("/users/:id", updateUser, requireAuth)
	webserver.ApiDELETE("/users/:id", deleteUser, requireAuth)
}

// User management lives in the backend; these handlers relay bodies and
// status codes untouched so backend validation errors surface as-is.

func listUsers(c echo.Context) error {
	query := map[string]string{
		"pageNumber": c.QueryParam("pageNumber"),
		"pageSize":   c.QueryParam("pageSize"),
		"search":     c.QueryParam("search"),
	}
	body, status, err := GetApp(c).Backend().Users(c.Request().Context(), query, sessionAuthorization(c))
	if err != nil {
		return fail(c, http.StatusBadGateway, "BACKEND_ERROR", "Failed to fetch users", err.Error())
	}
	return relay(c, body, status)
}

func createUser(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read request body", nil)
	}
	body, status, err := GetApp(c).Backend().CreateUser(c.Request().Context(), payload, sessionAuthorization(c))
	if err != nil {
		return fail(c, http.StatusBadGateway, "BACKEND_ERROR", "Failed to create user", err.Error())
	}
	if status < 300 {
		GetApp(c).WriteOpLog(sessionUsername(c), c.RealIP(), "user_create", "created backend user")
	}
	return relay(c, body, status)
}

func updateUser(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to read request body", nil)
	}
	body, status, err := GetApp(c).Backend().UpdateUser(c.Request().Context(), c.Param("id"), payload, sessionAuthorization(c))
	if err != nil {
		return fail(c, http.StatusBadGateway, "BACKEND_ERROR", "Failed to update user", err.Error())
	}
	if status < 300 {
		GetApp(c).WriteOpLog(sessionUsername(c), c.RealIP(), "user_update", "updated backend user "+c.Param("id"))
	}
	return relay(c, body, status)
}

func deleteUser(c echo.Context) error {
	body, status, err := GetApp(c).Backend().DeleteUser(c.Request().Context(), c.Param("id"), sessionAuthorization(c))
	if err != nil {
		return fail(c, http.StatusBadGateway, "BACKEND_ERROR", "Failed to delete user", err.Error())
	}
	if status < 300 {
		GetApp(c).WriteOpLog(sessionUsername(c), c.RealIP(), "user_delete", "deleted backend user "+c.Param("id"))
	}
	return relay(c, body, status)
}
