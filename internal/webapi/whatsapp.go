package webapi

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ofertalabs/waboard/internal/webserver"
	"github.com/ofertalabs/waboard/internal/whatsapp"
)

func registerWhatsAppRoutes() {
	webserver.ApiGET("/whatsapp/templates", listTemplates, requireAuth)
	webserver.ApiPOST("/whatsapp/send-template", sendTemplate, requireAuth)
	webserver.ApiPOST("/whatsapp/media", uploadMedia, requireAuth)
	webserver.ApiGET("/whatsapp/media/:id", downloadMedia, requireAuth)
}

func listTemplates(c echo.Context) error {
	templates, err := GetApp(c).Graph().Templates(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusBadGateway, "GRAPH_ERROR", "Failed to list templates", err.Error())
	}
	return ok(c, templates)
}

func sendTemplate(c echo.Context) error {
	var req whatsapp.SendTemplateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse template parameters", nil)
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" || req.Template == "" {
		return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "to and template are required", nil)
	}

	body, status, err := GetApp(c).Graph().SendTemplate(c.Request().Context(), req)
	if err != nil {
		return fail(c, http.StatusBadGateway, "GRAPH_ERROR", "Failed to send template", err.Error())
	}
	if status < 300 {
		GetApp(c).WriteOpLog(sessionUsername(c), c.RealIP(), "send_template",
			"sent template "+req.Template+" to "+req.To)
	}
	return relay(c, body, status)
}

func uploadMedia(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "MISSING_FILE", "file is required", nil)
	}
	src, err := fh.Open()
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_FILE", "Unable to open uploaded file", nil)
	}
	defer src.Close()

	body, status, err := GetApp(c).Graph().UploadMedia(
		c.Request().Context(), fh.Filename, fh.Header.Get("Content-Type"), src)
	if err != nil {
		return fail(c, http.StatusBadGateway, "GRAPH_ERROR", "Failed to upload media", err.Error())
	}
	return relay(c, body, status)
}

// downloadMedia resolves the media id and streams the bytes through. The
// bearer token never reaches the browser.
func downloadMedia(c echo.Context) error {
	graph := GetApp(c).Graph()
	info, err := graph.Media(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, http.StatusBadGateway, "GRAPH_ERROR", "Failed to resolve media", err.Error())
	}
	body, contentType, err := graph.Download(c.Request().Context(), info.URL)
	if err != nil {
		return fail(c, http.StatusBadGateway, "GRAPH_ERROR", "Failed to download media", err.Error())
	}
	defer body.Close()
	if contentType == "" {
		contentType = info.MimeType
	}
	c.Response().Header().Set(echo.HeaderContentType, contentType)
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), body)
	return err
}
