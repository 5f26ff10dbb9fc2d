package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
)

const (
	openrouterBaseURL = "https://openrouter.ai/api/v1"
	openrouterModel   = "google/gemini-2.5-flash"
)

// openrouterClient is reused across calls; authorization is per request.
var openrouterClient = resty.New().SetBaseURL(openrouterBaseURL).SetTimeout(90 * time.Second)

// OpenRouterProvider parses receipts through OpenRouter's OpenAI-compatible
// chat API. It is the fallback of last resort: one key covers many upstream
// models, which helps when a direct provider account runs out of credit.
type OpenRouterProvider struct{}

func (p *OpenRouterProvider) Name() string       { return "openrouter" }
func (p *OpenRouterProvider) BillingTag() string { return "openrouter" }
func (p *OpenRouterProvider) Available() bool    { return true }

// ParseReceipt implements the ocr.Provider interface against the raw REST API.
func (p *OpenRouterProvider) ParseReceipt(ctx context.Context, images []ocr.ImageInput, apiKey, mimeType string) (*ocr.ParsedReceipt, error) {
	if len(images) == 0 {
		return nil, ocr.NewError(ocr.KindBadInput, "no images provided")
	}

	prompt := receiptPrompt
	if len(images) > 1 {
		prompt = receiptMultiImagePrompt
	}

	content := []map[string]any{
		{"type": "text", "text": prompt},
	}
	for _, img := range images {
		content = append(content, map[string]any{
			"type": "image_url",
			"image_url": map[string]string{
				"url": fmt.Sprintf("data:%s;base64,%s", mimeType, img.Data),
			},
		})
	}

	body := map[string]any{
		"model": openrouterModel,
		"messages": []map[string]any{
			{"role": "user", "content": content},
		},
	}

	res, err := openrouterClient.R().
		SetContext(ctx).
		SetAuthToken(apiKey).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("openrouter request failed: %w", err)
	}
	if res.IsError() {
		// Status code stays in the message so Classify can pick up
		// 429/502/503 and auth failures.
		return nil, fmt.Errorf("openrouter request failed: %d %s", res.StatusCode(), string(res.Body()))
	}

	parsed := gjson.ParseBytes(res.Body())
	log.Info().
		Str("model", openrouterModel).
		Int("imageCount", len(images)).
		Int64("inputTokens", parsed.Get("usage.prompt_tokens").Int()).
		Int64("outputTokens", parsed.Get("usage.completion_tokens").Int()).
		Msg("openrouter receipt ocr call")

	text := parsed.Get("choices.0.message.content").String()
	return ocr.ParseModelResponse(text, p.Name())
}
