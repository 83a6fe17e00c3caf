package backend

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/guonaihong/gout"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/config"
	"github.com/ofertalabs/waboard/internal/domain"
	"github.com/ofertalabs/waboard/pkg/common"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client talks to the conversations backend (the external REST API the
// dashboard fronts). All calls carry the caller's Authorization header
// verbatim; the client holds no credential of its own except for the
// service-level hub endpoint lookup.
type Client struct {
	cfg        *config.AppConfig
	httpClient *http.Client

	hubOnce sync.Once
	hubURL  string
	hubErr  error
}

func NewClient(cfg *config.AppConfig) *Client {
	hc := &http.Client{Timeout: 30 * time.Second}
	if cfg.Backend.Insecure {
		hc.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &Client{cfg: cfg, httpClient: hc}
}

// apiRoot returns the backend base URL guaranteed to end in /api/v1.
func (c *Client) apiRoot() string {
	base := strings.TrimRight(c.cfg.Backend.BaseURL, "/")
	if !strings.HasSuffix(base, "/api/v1") {
		base += "/api/v1"
	}
	return base
}

// HubURL derives the realtime hub endpoint from the backend base URL: strip
// the /api/v1 suffix and append /hubs/conversations. An explicit configured
// hub URL wins. The value is resolved once per process.
func (c *Client) HubURL(ctx context.Context) (string, error) {
	c.hubOnce.Do(func() {
		if c.cfg.Backend.HubURL != "" {
			c.hubURL = c.cfg.Backend.HubURL
			return
		}
		base := strings.TrimRight(c.cfg.Backend.BaseURL, "/")
		base = strings.TrimSuffix(base, "/api/v1")
		if base == "" {
			c.hubErr = errors.New("backend: no base url to derive hub endpoint from")
			return
		}
		c.hubURL = base + "/hubs/conversations"
	})
	return c.hubURL, c.hubErr
}

// Auth exchanges credentials for the backend user record. The returned
// Authorization value is the basic token the session stores and replays on
// every proxied call.
func (c *Client) Auth(ctx context.Context, username, password string) (*domain.AuthResult, error) {
	authz := common.BasicAuthorization(username, password)
	var raw []byte
	code := 0
	err := gout.New(c.httpClient).
		GET(c.apiRoot() + "/Users/auth").
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": authz}).
		BindBody(&raw).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "backend auth")
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return nil, errors.New("invalid credentials")
	}
	if code != http.StatusOK {
		return nil, errors.Errorf("backend auth: unexpected status %d", code)
	}
	var user struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, errors.Wrap(err, "backend auth decode")
	}
	return &domain.AuthResult{
		ID:            user.ID,
		Username:      user.Username,
		Role:          user.Role,
		Authorization: authz,
	}, nil
}

// Conversations fetches the snapshot rows for one phone. Upstream rows use a
// few historical field spellings; each is mapped through a fallback chain so
// old and new backend versions render the same.
func (c *Client) Conversations(ctx context.Context, phone, authz string) ([]domain.ConversationRow, error) {
	var raw []byte
	code := 0
	err := gout.New(c.httpClient).
		GET(c.apiRoot() + "/Conversations").
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": authz}).
		SetQuery(gout.H{"phone": phone}).
		BindBody(&raw).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "backend conversations")
	}
	if code != http.StatusOK {
		return nil, errors.Errorf("backend conversations: unexpected status %d", code)
	}
	return decodeRows(raw)
}

// OfferConversations fetches the offer-backed snapshot, falling back to the
// plain Conversations listing when the backend predates the offers route.
func (c *Client) OfferConversations(ctx context.Context, phone, authz string) ([]domain.ConversationRow, error) {
	var raw []byte
	code := 0
	err := gout.New(c.httpClient).
		GET(c.apiRoot() + "/Offers/Conversations").
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": authz}).
		SetQuery(gout.H{"phone": phone}).
		BindBody(&raw).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "backend offer conversations")
	}
	if code == http.StatusNotFound || code == http.StatusMethodNotAllowed {
		zap.L().Debug("backend: offers route unavailable, falling back",
			zap.Int("status", code))
		return c.Conversations(ctx, phone, authz)
	}
	if code != http.StatusOK {
		return nil, errors.Errorf("backend offer conversations: unexpected status %d", code)
	}
	return decodeRows(raw)
}

func decodeRows(body []byte) ([]domain.ConversationRow, error) {
	var raw []map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "backend conversations decode")
	}
	return mapRows(raw), nil
}

// mapRows normalizes one upstream row set. Fallback chains per field:
// conversationId??id, messageCreatedAt??createdAt??convCreatedAt??now.
func mapRows(raw []map[string]interface{}) []domain.ConversationRow {
	now := time.Now().UTC().Format(time.RFC3339)
	rows := make([]domain.ConversationRow, 0, len(raw))
	for _, r := range raw {
		convID := cast.ToInt64(r["conversationId"])
		if convID == 0 {
			convID = cast.ToInt64(r["id"])
		}
		created := firstString(r, "messageCreatedAt", "createdAt", "convCreatedAt")
		if created == "" {
			created = now
		}
		convCreated := firstString(r, "convCreatedAt", "conversationCreatedAt")
		rows = append(rows, domain.ConversationRow{
			ConversationID: convID,
			State:          cast.ToString(r["state"]),
			InitiatedBy:    cast.ToString(r["initiatedBy"]),
			MessageID:      cast.ToInt64(r["messageId"]),
			Content:        firstString(r, "content", "context"),
			CreatedAt:      created,
			Origin:         cast.ToString(r["origin"]),
			ConvCreatedAt:  convCreated,
			ConvUpdatedAt:  firstString(r, "convUpdatedAt", "conversationUpdatedAt"),
			WaMessageID:    firstString(r, "waMessageId", "whatsappMessageId"),
		})
	}
	return rows
}

func firstString(r map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if s := cast.ToString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

// Messages proxies the paged message listing, passing pagination and filter
// parameters through untouched and returning the upstream body verbatim.
func (c *Client) Messages(ctx context.Context, query map[string]string, authz string) ([]byte, int, error) {
	return c.proxyGET(ctx, "/Offers/Messages", query, authz)
}

// Users proxies the user management listing.
func (c *Client) Users(ctx context.Context, query map[string]string, authz string) ([]byte, int, error) {
	return c.proxyGET(ctx, "/Users", query, authz)
}

// CreateUser forwards a user creation body.
func (c *Client) CreateUser(ctx context.Context, body []byte, authz string) ([]byte, int, error) {
	var out []byte
	code := 0
	err := gout.New(c.httpClient).
		POST(c.apiRoot() + "/Users").
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": authz, "Content-Type": "application/json"}).
		SetBody(body).
		BindBody(&out).
		Code(&code).
		Do()
	if err != nil {
		return nil, 0, errors.Wrap(err, "backend create user")
	}
	return out, code, nil
}

// UpdateUser forwards a user update body.
func (c *Client) UpdateUser(ctx context.Context, id string, body []byte, authz string) ([]byte, int, error) {
	var out []byte
	code := 0
	err := gout.New(c.httpClient).
		PUT(c.apiRoot() + "/Users/" + id).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": authz, "Content-Type": "application/json"}).
		SetBody(body).
		BindBody(&out).
		Code(&code).
		Do()
	if err != nil {
		return nil, 0, errors.Wrap(err, "backend update user")
	}
	return out, code, nil
}

// DeleteUser forwards a user deletion.
func (c *Client) DeleteUser(ctx context.Context, id, authz string) ([]byte, int, error) {
	var out []byte
	code := 0
	err := gout.New(c.httpClient).
		DELETE(c.apiRoot() + "/Users/" + id).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": authz}).
		BindBody(&out).
		Code(&code).
		Do()
	if err != nil {
		return nil, 0, errors.Wrap(err, "backend delete user")
	}
	return out, code, nil
}

func (c *Client) proxyGET(ctx context.Context, path string, query map[string]string, authz string) ([]byte, int, error) {
	var out []byte
	code := 0
	q := gout.H{}
	for k, v := range query {
		if v != "" {
			q[k] = v
		}
	}
	err := gout.New(c.httpClient).
		GET(c.apiRoot() + path).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": authz}).
		SetQuery(q).
		BindBody(&out).
		Code(&code).
		Do()
	if err != nil {
		return nil, 0, errors.Wrapf(err, "backend proxy %s", path)
	}
	return out, code, nil
}
