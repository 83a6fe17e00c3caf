package poller

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ofertalabs/waboard/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StreamClient consumes a server-sent-events conversation stream as an
// alternative to interval polling. Each data frame carries a typed envelope;
// only "conversations" frames reach the apply callback, ping frames keep the
// connection warm and are dropped.
type StreamClient struct {
	url        string
	authz      string
	httpClient *http.Client
	apply      ApplyFunc
}

func NewStreamClient(url, authz string, httpClient *http.Client, apply ApplyFunc) *StreamClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &StreamClient{url: url, authz: authz, httpClient: httpClient, apply: apply}
}

type streamFrame struct {
	Type string                   `json:"type"`
	Data []domain.ConversationRow `json:"data"`
}

// Run blocks consuming the stream until ctx ends or the connection drops.
// The caller decides whether to redial.
func (s *StreamClient) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.authz != "" {
		req.Header.Set("Authorization", s.authz)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "stream dial")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("stream: unexpected status %d", resp.StatusCode)
	}

	zap.L().Info("stream: connected", zap.String("url", s.url))
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var frame streamFrame
		if err := json.UnmarshalFromString(data, &frame); err != nil {
			zap.L().Debug("stream: unparseable frame", zap.Error(err))
			continue
		}
		if frame.Type != "conversations" {
			continue
		}
		s.apply(frame.Data)
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return errors.Wrap(err, "stream read")
	}
	return ctx.Err()
}

// RunForever redials the stream with a flat delay until ctx ends. Used when
// the stream is the primary feed rather than a one-shot fallback.
func (s *StreamClient) RunForever(ctx context.Context, redial time.Duration) {
	if redial <= 0 {
		redial = 5 * time.Second
	}
	for {
		if err := s.Run(ctx); err != nil && ctx.Err() == nil {
			zap.L().Warn("stream: dropped, redialing", zap.Error(err), zap.Duration("delay", redial))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(redial):
		}
	}
}
