package keyword

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

// ErrEmptyBaseURL возвращается при создании клиента без адреса сервиса.
var ErrEmptyBaseURL = errors.New("адрес подборщика ключевых слов не задан")

// HTTPPicker обращается к внешнему сервису подбора ключевых слов.
type HTTPPicker struct {
	http    *http.Client
	baseURL string
}

var _ domain.KeywordPicker = (*HTTPPicker)(nil)

// NewHTTP создаёт клиента подборщика.
func NewHTTP(baseURL string, timeout time.Duration) (*HTTPPicker, error) {
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPPicker{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

type keywordResponse struct {
	Keyword string `json:"keyword"`
}

// PickKeyword возвращает ключевое слово для секции настроения.
func (p *HTTPPicker) PickKeyword(ctx context.Context, section int, avgScore float64) (string, error) {
	query := url.Values{
		"section": {strconv.Itoa(section)},
		"score":   {strconv.FormatFloat(avgScore, 'f', 2, 64)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/keyword?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := p.http.Do(req)
	metrics.ObserveNetworkRequest("keyword", "pick", "keyword", start, err)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("pick keyword failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed keywordResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(parsed.Keyword) == "" {
		return "", errors.New("подборщик вернул пустое слово")
	}
	return parsed.Keyword, nil
}
