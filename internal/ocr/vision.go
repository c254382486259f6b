package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultVisionBaseURL = "https://api.openai.com/v1"

type visionConfig struct {
	APIKeys []string `json:"api_keys"`
	BaseURL string   `json:"base_url"`
	Model   string   `json:"model"`
}

// visionEngine speaks the OpenAI-compatible chat completions protocol with
// an image attachment, which most hosted vision models accept.
type visionEngine struct {
	keyring *Keyring
	baseURL string
	model   string
}

type visionChatRequest struct {
	Model    string          `json:"model"`
	Messages []visionChatMsg `json:"messages"`
	Stream   bool            `json:"stream"`
}

type visionChatMsg struct {
	Role    string              `json:"role"`
	Content []visionContentPart `json:"content"`
}

type visionContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
}

type visionImageURL struct {
	URL string `json:"url"`
}

type visionChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func init() {
	Register("vision", createVisionEngine)
}

func createVisionEngine(args interface{}) (Engine, error) {
	config := &visionConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if len(config.APIKeys) == 0 {
		return nil, fmt.Errorf("vision api_keys are required")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultVisionBaseURL
	}
	if config.Model == "" {
		return nil, fmt.Errorf("vision model is required")
	}
	return &visionEngine{
		keyring: NewKeyring(config.APIKeys),
		baseURL: config.BaseURL,
		model:   config.Model,
	}, nil
}

func (e *visionEngine) Name() string {
	return "vision"
}

func (e *visionEngine) Recognize(ctx context.Context, image []byte) (*Result, error) {
	apiKey := e.keyring.Next()
	if apiKey == "" {
		return nil, fmt.Errorf("vision key not configured")
	}
	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	reqBody := visionChatRequest{
		Model: e.model,
		Messages: []visionChatMsg{{
			Role: "user",
			Content: []visionContentPart{
				{Type: "text", Text: transcribePrompt},
				{Type: "image_url", ImageURL: &visionImageURL{URL: dataURL}},
			},
		}},
		Stream: false,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(e.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vision request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out visionChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Choices) == 0 {
		return &Result{}, nil
	}
	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return &Result{}, nil
	}
	return &Result{Text: text, Confidence: 80}, nil
}
