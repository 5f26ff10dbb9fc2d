package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
)

const openaiModel = "gpt-5.2"

// OpenAIProvider parses receipts with OpenAI's vision-capable chat API.
type OpenAIProvider struct{}

func (o *OpenAIProvider) Name() string       { return "openai" }
func (o *OpenAIProvider) BillingTag() string { return "openai" }
func (o *OpenAIProvider) Available() bool    { return true }

// ParseReceipt implements the ocr.Provider interface using OpenAI.
func (o *OpenAIProvider) ParseReceipt(ctx context.Context, images []ocr.ImageInput, apiKey, mimeType string) (*ocr.ParsedReceipt, error) {
	if len(images) == 0 {
		return nil, ocr.NewError(ocr.KindBadInput, "no images provided")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	prompt := receiptPrompt
	if len(images) > 1 {
		prompt = receiptMultiImagePrompt
	}

	content := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	for _, img := range images {
		// The chat API takes images as data URLs; ImageInput data is
		// already base64 text.
		dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, img.Data)
		content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}))
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openaiModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(content),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, ocr.NewError(ocr.KindParseFailed, "empty response from openai")
	}

	log.Info().
		Str("model", openaiModel).
		Int("imageCount", len(images)).
		Int64("inputTokens", resp.Usage.PromptTokens).
		Int64("outputTokens", resp.Usage.CompletionTokens).
		Msg("openai receipt ocr call")

	return ocr.ParseModelResponse(resp.Choices[0].Message.Content, o.Name())
}
