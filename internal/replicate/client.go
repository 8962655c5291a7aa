package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taletoprint-backend/internal/retry"
)

// Client talks to the Replicate predictions API to produce the
// high-resolution artwork for an order. A single Generate call may fall
// back across model variants; callers see one success/failure outcome.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	models     []string
}

// defaultModels is the fallback chain, tried in order. The first variant
// is the quality target, the rest are cheaper fallbacks for rate-limit or
// capacity trouble on the primary.
var defaultModels = []string{
	"black-forest-labs/flux-1.1-pro",
	"black-forest-labs/flux-dev",
	"stability-ai/stable-diffusion-3.5-large",
}

type GenerationRequest struct {
	Prompt     string
	Style      string
	PreviewURL string
	Width      int
	Height     int
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"` // "starting", "processing", "succeeded", "failed", "canceled"
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		timeout: timeout,
		models:  defaultModels,
	}
}

// Generate produces a high-resolution image for the refined prompt and
// style, returning the hosted output URL. Each model variant gets one
// attempt end-to-end; rate limits inside an attempt are retried with
// backoff. The configured timeout bounds the whole call, after which the
// step is treated as failed.
func (c *Client) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for _, model := range c.models {
		url, err := c.generateWithModel(ctx, model, req)
		if err == nil {
			return url, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return "", fmt.Errorf("image generation failed across %d model variants: %w", len(c.models), lastErr)
}

func (c *Client) generateWithModel(ctx context.Context, model string, req GenerationRequest) (string, error) {
	input := map[string]interface{}{
		"prompt":        req.Prompt,
		"output_format": "png",
	}
	if req.Style != "" {
		input["prompt"] = req.Prompt + ", " + req.Style + " style"
	}
	if req.PreviewURL != "" {
		input["image_prompt"] = req.PreviewURL
	}
	if req.Width > 0 && req.Height > 0 {
		input["width"] = req.Width
		input["height"] = req.Height
	}

	body, err := json.Marshal(map[string]interface{}{"input": input})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.baseURL, "/") + "/models/" + model + "/predictions"

	var pred prediction
	err = retry.Do(ctx, func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Prefer", "wait")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return retry.Transient(
				fmt.Errorf("rate limited by %s: %s", model, string(respBody)),
				parseRetryAfter(resp.Header.Get("Retry-After")),
			)
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("failed to create prediction: status %d, body: %s", resp.StatusCode, string(respBody))
		}

		if err := json.Unmarshal(respBody, &pred); err != nil {
			return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		}
		return nil
	}, 3)
	if err != nil {
		return "", err
	}

	// "Prefer: wait" usually returns a terminal prediction; poll the rest.
	for pred.Status != "succeeded" && pred.Status != "failed" && pred.Status != "canceled" {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("generation timed out waiting for prediction %s: %w", pred.ID, ctx.Err())
		case <-time.After(2 * time.Second):
		}
		if err := c.getPrediction(ctx, pred.ID, &pred); err != nil {
			return "", err
		}
	}

	if pred.Status != "succeeded" {
		return "", fmt.Errorf("prediction %s %s: %s", pred.ID, pred.Status, pred.Error)
	}

	url, err := outputURL(pred.Output)
	if err != nil {
		return "", fmt.Errorf("prediction %s: %w", pred.ID, err)
	}
	return url, nil
}

func (c *Client) getPrediction(ctx context.Context, id string, out *prediction) error {
	endpoint := strings.TrimSuffix(c.baseURL, "/") + "/predictions/" + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to get prediction: status %d, body: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// outputURL handles both output shapes Replicate models produce: a single
// URL string or an array of URL strings.
func outputURL(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("prediction output is empty")
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}

	return "", fmt.Errorf("prediction output has no usable URL: %s", string(raw))
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
