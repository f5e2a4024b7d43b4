package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/routeplay/internal/history"
)

const DefaultIndex = "playback-history"

// Sink indexes events into OpenSearch (or Elasticsearch) over HTTP.
// Documents are written with PUT <base>/<index>/_doc/<event id>, so a
// resent event overwrites instead of duplicating.
type Sink struct {
	client   *http.Client
	baseURL  string
	index    string
	username string
	password string
}

func New(baseURL, index string) *Sink {
	if index == "" {
		index = DefaultIndex
	}
	s := &Sink{
		client:  &http.Client{Timeout: 5 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		index:   index,
	}
	if u, err := url.Parse(s.baseURL); err == nil && u.User != nil {
		s.username = u.User.Username()
		s.password, _ = u.User.Password()
		u.User = nil
		s.baseURL = u.String()
	}
	return s
}

func (s *Sink) Name() string { return "opensearch" }

func (s *Sink) docURL(id string) string {
	if id == "" {
		return fmt.Sprintf("%s/%s/_doc", s.baseURL, url.PathEscape(s.index))
	}
	return fmt.Sprintf("%s/%s/_doc/%s", s.baseURL, url.PathEscape(s.index), url.PathEscape(id))
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	method := http.MethodPut
	if e.ID == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, s.docURL(e.ID), bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("opensearch sink status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
