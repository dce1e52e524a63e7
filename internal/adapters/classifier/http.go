package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mood-pipeline/internal/domain"
	"mood-pipeline/internal/infra/metrics"
)

// ErrEmptyBaseURL возвращается при создании клиента без адреса сервиса.
var ErrEmptyBaseURL = errors.New("адрес классификатора не задан")

// HTTPClassifier обращается к внешнему сервису классификации настроения.
type HTTPClassifier struct {
	http    *http.Client
	baseURL string
}

var _ domain.Classifier = (*HTTPClassifier)(nil)

// NewHTTP создаёт клиента классификатора.
func NewHTTP(baseURL string, timeout time.Duration) (*HTTPClassifier, error) {
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

type classifyRequest struct {
	UserID int64  `json:"user_id"`
	Text   string `json:"text"`
}

type classifyResponse struct {
	ScoreDelta int    `json:"score_delta"`
	ScoreAfter int    `json:"score_after"`
	Reply      string `json:"reply"`
}

// Classify возвращает сдвиг, абсолютную оценку настроения и текст ответа.
func (c *HTTPClassifier) Classify(ctx context.Context, userID int64, text string) (domain.Classification, error) {
	body, err := json.Marshal(classifyRequest{UserID: userID, Text: text})
	if err != nil {
		return domain.Classification{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return domain.Classification{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.ObserveNetworkRequest("classifier", "classify", "classify", start, err)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Classification{}, fmt.Errorf("classify failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return domain.Classification{}, fmt.Errorf("decode response: %w", err)
	}
	return domain.Classification{
		ScoreDelta: parsed.ScoreDelta,
		ScoreAfter: parsed.ScoreAfter,
		Reply:      parsed.Reply,
	}, nil
}
