package webapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/internal/webserver"
)

func registerOplogRoutes() {
	webserver.ApiGET("/system/oplog", listOplog, requireAuth)
}

func listOplog(c echo.Context) error {
	page, pageSize := parsePagination(c)

	base := GetDB(c).Model(&domain.SysOprLog{})
	if name := strings.TrimSpace(c.QueryParam("username")); name != "" {
		base = base.Where("opr_name = ?", name)
	}
	if action := strings.TrimSpace(c.QueryParam("action")); action != "" {
		base = base.Where("opt_action = ?", action)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query audit log", err.Error())
	}

	var logs []domain.SysOprLog
	if err := base.Order("opt_time DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&logs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query audit log", err.Error())
	}
	return paged(c, logs, total, page, pageSize)
}
