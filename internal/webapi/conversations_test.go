package webapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ofertalabs/waboard/config"
	"github.com/ofertalabs/waboard/internal/app"
	"github.com/ofertalabs/waboard/internal/backend"
	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/internal/hub"
	"github.com/ofertalabs/waboard/internal/poller"
	"github.com/ofertalabs/waboard/internal/webserver"
	"github.com/ofertalabs/waboard/internal/whatsapp"
)

type stubApp struct {
	cfg    *config.AppConfig
	client *backend.Client
}

var _ app.AppContext = (*stubApp)(nil)

func (s *stubApp) DB() *gorm.DB                 { return nil }
func (s *stubApp) Config() *config.AppConfig    { return s.cfg }
func (s *stubApp) Backend() *backend.Client     { return s.client }
func (s *stubApp) Hub() *hub.Manager            { return nil }
func (s *stubApp) Graph() *whatsapp.Service     { return nil }
func (s *stubApp) Pool() *ants.Pool             { return nil }
func (s *stubApp) Scheduler() *cron.Cron        { return nil }
func (s *stubApp) MigrateDB(bool) error         { return nil }
func (s *stubApp) InitDb()                      {}
func (s *stubApp) DropAll()                     {}
func (s *stubApp) WriteOpLog(_, _, _, _ string) {}

func newConversationContext(t *testing.T, target string, backendURL string) echo.Context {
	cfg := *config.DefaultAppConfig
	cfg.Backend.BaseURL = backendURL
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.Set(webserver.AppContextKey, &stubApp{cfg: &cfg, client: backend.NewClient(&cfg)})
	return c
}

func TestListConversationsQueriesByPhone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/Offers/Conversations", r.URL.Path)
		assert.Equal(t, "5511988887777", r.URL.Query().Get("phone"))
		_, _ = w.Write([]byte(`[{"conversationId":7,"messageId":70,"content":"oi","messageCreatedAt":"2026-08-01T10:00:00Z"}]`))
	}))
	defer srv.Close()

	c := newConversationContext(t, "/api/v1/conversations?phone=5511988887777", srv.URL)
	require.NoError(t, listConversations(c))

	rec := c.Response().Writer.(*httptest.ResponseRecorder)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []domain.ConversationRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(7), body.Data[0].ConversationID)
	assert.Equal(t, "oi", body.Data[0].Content)
}

func TestListConversationsRequiresPhone(t *testing.T) {
	c := newConversationContext(t, "/api/v1/conversations", "http://unused")
	require.NoError(t, listConversations(c))
	rec := c.Response().Writer.(*httptest.ResponseRecorder)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// The SSE frames written by streamConversations must be decodable by the
// stream client, so one waboard instance can feed another. Serve a frame
// through the exact writeFrame encoding and check nothing is lost.
func TestStreamFrameRoundTripsThroughStreamClient(t *testing.T) {
	row := domain.ConversationRow{
		ConversationID: 7,
		State:          "sent",
		MessageID:      70,
		Content:        "oi",
		CreatedAt:      "2026-08-01T10:00:00Z",
	}
	frame, err := json.Marshal(streamEnvelope{Type: "conversations", Data: []domain.ConversationRow{row}})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: " + string(frame) + "\n\n"))
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var applied []domain.ConversationRow
	sc := poller.NewStreamClient(srv.URL, "", srv.Client(), func(rows []domain.ConversationRow) {
		mu.Lock()
		applied = append(applied, rows...)
		mu.Unlock()
	})
	require.NoError(t, sc.Run(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, applied, 1)
	assert.Equal(t, row, applied[0])
}
