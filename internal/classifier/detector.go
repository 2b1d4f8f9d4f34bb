package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Verdict is the outcome of classifying one piece of text. A nil *Verdict at
// the client level means "could not determine" and must never be read as
// "clean".
type Verdict struct {
	IsViolation  bool
	MatchedTerms []string
	OriginalText string
}

// Detector performs the actual classification call, without caching, rate
// limiting or retries. Those concerns belong to Client.
type Detector interface {
	Detect(ctx context.Context, text string) (*Verdict, error)
}

const statusForbidden = "forbidden"

type apiResponse struct {
	Status         string   `json:"status"`
	ForbiddenWords []string `json:"forbidden_words"`
	OriginalText   string   `json:"original_text"`
}

// APIDetector calls the upstream profanity-check endpoint.
type APIDetector struct {
	endpoint string
	client   *http.Client
}

func NewAPIDetector(endpoint string, timeout time.Duration) *APIDetector {
	return &APIDetector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (d *APIDetector) Detect(ctx context.Context, text string) (*Verdict, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	// 429 included: any non-2xx is a failed attempt, the caller's limiter
	// cooldown keeps us from hammering the upstream.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &Verdict{
		IsViolation:  body.Status == statusForbidden,
		MatchedTerms: body.ForbiddenWords,
		OriginalText: body.OriginalText,
	}, nil
}
