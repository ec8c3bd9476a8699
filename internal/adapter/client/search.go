package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"relay-core/internal/domain/entity"
)

// SearxClient queries a SearXNG-compatible JSON search endpoint. Any
// failure yields an empty result set; errors never cross this boundary.
type SearxClient struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

func NewSearxClient(baseURL string, timeout time.Duration, log zerolog.Logger) *SearxClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &SearxClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		log:     log,
	}
}

type searxResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (s *SearxClient) Search(ctx context.Context, query string) []entity.SearchResult {
	if s.baseURL == "" {
		return nil
	}

	endpoint := s.baseURL + "/search?format=json&q=" + url.QueryEscape(query)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil
	}

	res, err := s.client.Do(httpReq)
	if err != nil {
		s.log.Debug().Err(err).Msg("search request failed")
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		s.log.Debug().Int("status", res.StatusCode).Msg("search endpoint rejected query")
		return nil
	}

	var parsed searxResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		s.log.Debug().Err(err).Msg("search response decode failed")
		return nil
	}

	out := make([]entity.SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, entity.SearchResult{
			Title:      r.Title,
			Link:       r.URL,
			Snippet:    r.Content,
			SourceHost: hostOf(r.URL),
		})
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "web"
	}
	return u.Host
}
