package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPAdjudicator calls an OpenAI-compatible chat-completions endpoint to
// get the YES/NO Risk-Off and stabilization judgments (spec §4.7.3). The
// exact provider is an external concern; any OpenAI-compatible server
// (including a locally hosted one) works against this same wire shape.
type HTTPAdjudicator struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewHTTPAdjudicator builds an adjudicator against baseURL (an
// OpenAI-compatible `/chat/completions` host).
func NewHTTPAdjudicator(baseURL, apiKey, model string) *HTTPAdjudicator {
	return &HTTPAdjudicator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *HTTPAdjudicator) ask(ctx context.Context, prompt string) (bool, error) {
	body, err := json.Marshal(chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You answer strictly YES or NO. No other text."},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("adjudicator: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("adjudicator: status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("adjudicator: decode: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return false, fmt.Errorf("adjudicator: empty response")
	}

	answer := strings.ToUpper(strings.TrimSpace(parsed.Choices[0].Message.Content))
	return strings.HasPrefix(answer, "YES"), nil
}

// AdjudicateRiskOff implements Adjudicator.
func (a *HTTPAdjudicator) AdjudicateRiskOff(ctx context.Context, triggers []Trigger) (bool, error) {
	names := make([]string, len(triggers))
	for i, t := range triggers {
		names[i] = string(t)
	}
	prompt := fmt.Sprintf("The following macro risk triggers have fired and re-confirmed after 60 seconds: %s. "+
		"Should the trading system declare a Risk-Off and liquidate all positions? Answer YES or NO.",
		strings.Join(names, ", "))
	return a.ask(ctx, prompt)
}

// ConfirmStabilized implements Adjudicator.
func (a *HTTPAdjudicator) ConfirmStabilized(ctx context.Context) (bool, error) {
	return a.ask(ctx, "Fewer than two macro risk triggers remain active for one full monitoring cycle. "+
		"Has the market stabilized enough to cautiously resume trading? Answer YES or NO.")
}
