package ocr

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const transcribePrompt = `Transcribe ALL visible text from this screenshot of a university grade portal.
- Preserve the line structure: one portal row per output line.
- Keep module names and every numeric value exactly as displayed.
- Output ONLY the transcription, no commentary.`

type geminiConfig struct {
	APIKeys []string `json:"api_keys"`
	Model   string   `json:"model"`
}

type geminiEngine struct {
	keyring *Keyring
	model   string
}

func init() {
	Register("gemini", createGeminiEngine)
}

func createGeminiEngine(args interface{}) (Engine, error) {
	config := &geminiConfig{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if len(config.APIKeys) == 0 {
		return nil, fmt.Errorf("gemini api_keys are required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}
	return &geminiEngine{keyring: NewKeyring(config.APIKeys), model: config.Model}, nil
}

func (e *geminiEngine) Name() string {
	return "gemini"
}

func (e *geminiEngine) Recognize(ctx context.Context, image []byte) (*Result, error) {
	apiKey := e.keyring.Next()
	if apiKey == "" {
		return nil, fmt.Errorf("gemini key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	resp, err := client.Models.GenerateContent(
		ctx,
		e.model,
		[]*genai.Content{{Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: image}},
			{Text: transcribePrompt},
		}}},
		nil,
	)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return &Result{}, nil
	}
	// the API reports no per-word confidence; a fixed figure keeps the
	// consensus weighting comparable with the local engine
	return &Result{Text: text, Confidence: 85}, nil
}
