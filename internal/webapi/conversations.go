package webapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/internal/poller"
	"github.com/ofertalabs/waboard/internal/view"
	"github.com/ofertalabs/waboard/internal/webserver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const streamPingInterval = 15 * time.Second

func registerConversationRoutes() {
	webserver.ApiGET("/conversations", listConversations, requireAuth)
	webserver.ApiGET("/conversations/stream", streamConversations, requireAuth)
}

// snapshotFor builds the snapshot fetch for one phone. The offers route is
// tried first and falls back to the plain listing inside the client.
func snapshotFor(c echo.Context, phone string) view.SnapshotFunc {
	appCtx := GetApp(c)
	authz := sessionAuthorization(c)
	return func(ctx context.Context) ([]domain.ConversationRow, error) {
		return appCtx.Backend().OfferConversations(ctx, phone, authz)
	}
}

// listConversations returns the snapshot rows for one phone under a data key.
func listConversations(c echo.Context) error {
	phone := strings.TrimSpace(c.QueryParam("phone"))
	if phone == "" {
		return fail(c, http.StatusBadRequest, "MISSING_PHONE", "phone is required", nil)
	}
	rows, err := snapshotFor(c, phone)(c.Request().Context())
	if err != nil {
		return fail(c, http.StatusBadGateway, "BACKEND_ERROR", "Failed to fetch conversations", err.Error())
	}
	return ok(c, map[string]interface{}{"data": rows})
}

// streamEnvelope is one SSE frame: flat rows under data, grouping is the
// consumer's job. StreamClient in internal/poller decodes this exact shape.
type streamEnvelope struct {
	Type string                   `json:"type"`
	Data []domain.ConversationRow `json:"data,omitempty"`
}

// streamConversations serves the live view over server-sent events. The
// realtime hub feeds the assembler when available; otherwise an interval
// poller refreshes the same assembler through its gated snapshot path. Either
// way the client sees identical frames.
func streamConversations(c echo.Context) error {
	phone := strings.TrimSpace(c.QueryParam("phone"))
	if phone == "" {
		return fail(c, http.StatusBadRequest, "MISSING_PHONE", "phone is required", nil)
	}

	appCtx := GetApp(c)
	ctx := c.Request().Context()

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	notify := make(chan struct{}, 1)
	asm := view.NewAssembler(phone, appCtx.Hub(), snapshotFor(c, phone), func([]domain.ConversationRow) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	asm.Start(ctx)
	defer asm.Close()

	// When the hub is down the view degrades to interval polling. The poller
	// applies through the assembler's signature gate, so a later hub recovery
	// never double-applies anything.
	if err := appCtx.Hub().EnsureConnected(ctx); err != nil {
		zap.L().Warn("stream: hub unavailable, polling instead",
			zap.String("phone", phone), zap.Error(err))
		interval := time.Duration(appCtx.Config().Hub.PollSec) * time.Second
		p := poller.New(phone, interval, appCtx.Pool(),
			poller.FetchFunc(snapshotFor(c, phone)), asm.ApplySnapshot)
		p.Start(ctx)
		defer p.Stop()
	}

	writeFrame := func(env streamEnvelope) error {
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		resp.Flush()
		return nil
	}

	if err := writeFrame(streamEnvelope{Type: "conversations", Data: asm.Rows()}); err != nil {
		return nil
	}

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-notify:
			if err := writeFrame(streamEnvelope{Type: "conversations", Data: asm.Rows()}); err != nil {
				return nil
			}
		case <-ping.C:
			if err := writeFrame(streamEnvelope{Type: "ping"}); err != nil {
				return nil
			}
		}
	}
}
