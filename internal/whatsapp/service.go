package whatsapp

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/config"
	"github.com/ofertalabs/waboard/internal/domain"
)

const defaultGraphBase = "https://graph.facebook.com"

// templatePageCap bounds how many template rows a listing walk will collect.
const templatePageCap = 2500

// Service is the WhatsApp Cloud (Graph) API client the dashboard uses to
// list message templates, send templated messages and move media.
type Service struct {
	cfg        *config.AppConfig
	base       string
	httpClient *http.Client
}

func NewService(cfg *config.AppConfig) *Service {
	return &Service{
		cfg:        cfg,
		base:       defaultGraphBase,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *Service) bearer() string {
	return "Bearer " + s.cfg.WhatsApp.Token
}

func (s *Service) versionBase() string {
	return s.base + "/" + s.cfg.WhatsApp.Version
}

type templatePage struct {
	Data []struct {
		ID         string        `json:"id"`
		Name       string        `json:"name"`
		Language   string        `json:"language"`
		Status     string        `json:"status"`
		Category   string        `json:"category"`
		Components []map[string]interface{} `json:"components"`
	} `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// Templates lists the business account's message templates, following the
// Graph paging cursor until exhausted or the page cap is hit.
func (s *Service) Templates(ctx context.Context) ([]domain.Template, error) {
	url := s.versionBase() + "/" + s.cfg.WhatsApp.BusinessID + "/message_templates?limit=100"
	var out []domain.Template
	for url != "" && len(out) < templatePageCap {
		var page templatePage
		code := 0
		err := gout.New(s.httpClient).
			GET(url).
			WithContext(ctx).
			SetHeader(gout.H{"Authorization": s.bearer()}).
			BindJSON(&page).
			Code(&code).
			Do()
		if err != nil {
			return nil, errors.Wrap(err, "graph templates")
		}
		if code != http.StatusOK {
			return nil, errors.Errorf("graph templates: unexpected status %d", code)
		}
		for _, t := range page.Data {
			out = append(out, domain.Template{
				ID:         t.ID,
				Name:       t.Name,
				Language:   t.Language,
				Status:     t.Status,
				Category:   t.Category,
				Components: t.Components,
			})
		}
		url = page.Paging.Next
	}
	if len(out) >= templatePageCap {
		zap.L().Warn("whatsapp: template listing truncated", zap.Int("cap", templatePageCap))
	}
	return out, nil
}

// SendTemplateRequest is what the dashboard posts when firing a template
// message at a customer number.
type SendTemplateRequest struct {
	To         string        `json:"to"`
	Template   string        `json:"template"`
	Language   string        `json:"language"`
	Components []interface{} `json:"components,omitempty"`
}

// SendTemplate fires one templated message through the configured phone
// number and returns the raw Graph response body with its status code.
func (s *Service) SendTemplate(ctx context.Context, req SendTemplateRequest) ([]byte, int, error) {
	if req.Language == "" {
		req.Language = "pt_BR"
	}
	body := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                req.To,
		"type":              "template",
		"template": map[string]interface{}{
			"name":       req.Template,
			"language":   map[string]string{"code": req.Language},
			"components": req.Components,
		},
	}
	var out []byte
	code := 0
	err := gout.New(s.httpClient).
		POST(s.versionBase() + "/" + s.cfg.WhatsApp.PhoneNumberID + "/messages").
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": s.bearer()}).
		SetJSON(body).
		BindBody(&out).
		Code(&code).
		Do()
	if err != nil {
		return nil, 0, errors.Wrap(err, "graph send template")
	}
	return out, code, nil
}

// UploadMedia streams an uploaded file to the Graph media endpoint and
// returns the raw response (Graph answers {"id": "..."}). The multipart body
// is built by hand so the incoming upload streams through without buffering
// the whole file.
func (s *Service) UploadMedia(ctx context.Context, filename, contentType string, file io.Reader) ([]byte, int, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer pw.Close()
		_ = mw.WriteField("messaging_product", "whatsapp")
		if contentType != "" {
			_ = mw.WriteField("type", contentType)
		}
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.versionBase()+"/"+s.cfg.WhatsApp.PhoneNumberID+"/media", pr)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", s.bearer())
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "graph upload media")
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return out, resp.StatusCode, nil
}

// MediaInfo holds the metadata Graph returns for a media id.
type MediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
	ID       string `json:"id"`
}

// Media resolves a media id to its metadata, including the short-lived
// download URL.
func (s *Service) Media(ctx context.Context, id string) (*MediaInfo, error) {
	var info MediaInfo
	code := 0
	err := gout.New(s.httpClient).
		GET(s.versionBase() + "/" + id).
		WithContext(ctx).
		SetHeader(gout.H{"Authorization": s.bearer()}).
		BindJSON(&info).
		Code(&code).
		Do()
	if err != nil {
		return nil, errors.Wrap(err, "graph media info")
	}
	if code != http.StatusOK {
		return nil, errors.Errorf("graph media info: unexpected status %d", code)
	}
	return &info, nil
}

// Download fetches the media bytes behind a metadata URL. Graph media URLs
// reject unauthenticated requests, so the bearer token is attached here too.
// The caller owns the returned body.
func (s *Service) Download(ctx context.Context, mediaURL string) (io.ReadCloser, string, error) {
	if !strings.HasPrefix(mediaURL, "https://") {
		return nil, "", errors.New("graph download: refusing non-https media url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", s.bearer())
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "graph download")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", errors.Errorf("graph download: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}
