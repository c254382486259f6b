package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type tesseractConfig struct {
	Endpoint       string `json:"endpoint"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// tesseractEngine talks to a warmed local tesseract sidecar over HTTP.
// The sidecar owns the engine instance, so one submission at a time keeps
// resource usage bounded.
type tesseractEngine struct {
	endpoint string
	client   *http.Client
}

type tesseractResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Words      []struct {
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
		BBox       [4]int  `json:"bbox"`
	} `json:"words"`
}

func init() {
	Register("tesseract", createTesseractEngine)
}

func createTesseractEngine(args interface{}) (Engine, error) {
	config := &tesseractConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if config.Endpoint == "" {
		return nil, fmt.Errorf("tesseract endpoint is required")
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 30
	}
	return &tesseractEngine{
		endpoint: strings.TrimRight(config.Endpoint, "/"),
		client:   &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second},
	}, nil
}

func (e *tesseractEngine) Name() string {
	return "tesseract"
}

func (e *tesseractEngine) Recognize(ctx context.Context, image []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/ocr", bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tesseract request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out tesseractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	result := &Result{Text: strings.TrimSpace(out.Text), Confidence: out.Confidence}
	for _, w := range out.Words {
		result.Words = append(result.Words, Word{Text: w.Text, Confidence: w.Confidence, Box: w.BBox})
	}
	return result, nil
}
