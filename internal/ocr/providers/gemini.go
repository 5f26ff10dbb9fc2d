// Package providers contains the concrete vision-AI backends wired into the
// ocr registry.
package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
)

const geminiModel = "gemini-3-flash-preview"

const receiptPrompt = `Extract the data from this receipt photo.

Respond in JSON format with these fields:
- total: the receipt grand total as a number
- merchant: the store or merchant name
- date: the purchase date in YYYY-MM-DD format
- currency: the ISO 4217 currency code if identifiable (empty string if unknown)
- items: array of line items, each with:
  - name: the item name as printed
  - quantity: quantity as a number (1 if not printed)
  - pricePerUnit: unit price as a number
  - totalPrice: line total as a number

Example response:
{"total": 12.47, "merchant": "Lidl", "date": "2025-01-01", "currency": "EUR", "items": [{"name": "Orange Juice 1L", "quantity": 1, "pricePerUnit": 2.49, "totalPrice": 2.49}]}

Respond ONLY with the JSON object, no markdown or other text.`

const receiptMultiImagePrompt = `Extract the data from these photos of a single receipt.

The photos show parts of the same receipt - combine them into one result and do not duplicate line items that appear in more than one photo.

Respond in JSON format with these fields:
- total: the receipt grand total as a number
- merchant: the store or merchant name
- date: the purchase date in YYYY-MM-DD format
- currency: the ISO 4217 currency code if identifiable (empty string if unknown)
- items: array of line items, each with:
  - name: the item name as printed
  - quantity: quantity as a number (1 if not printed)
  - pricePerUnit: unit price as a number
  - totalPrice: line total as a number

Respond ONLY with the JSON object, no markdown or other text.`

// GeminiProvider parses receipts with Google's Gemini API.
type GeminiProvider struct{}

func (g *GeminiProvider) Name() string       { return "gemini" }
func (g *GeminiProvider) BillingTag() string { return "google" }
func (g *GeminiProvider) Available() bool    { return true }

// ParseReceipt implements the ocr.Provider interface using Gemini.
// The client is created per call because keys are resolved per user.
func (g *GeminiProvider) ParseReceipt(ctx context.Context, images []ocr.ImageInput, apiKey, mimeType string) (*ocr.ParsedReceipt, error) {
	if len(images) == 0 {
		return nil, ocr.NewError(ocr.KindBadInput, "no images provided")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	prompt := receiptPrompt
	if len(images) > 1 {
		prompt = receiptMultiImagePrompt
	}

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}
	for _, img := range images {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil, ocr.NewError(ocr.KindBadInput, "image is not valid base64: %v", err)
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: data, MIMEType: mimeType},
		})
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := client.Models.GenerateContent(ctx, geminiModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if result.UsageMetadata != nil {
		log.Info().
			Str("model", geminiModel).
			Int("imageCount", len(images)).
			Int32("inputTokens", result.UsageMetadata.PromptTokenCount).
			Int32("outputTokens", result.UsageMetadata.CandidatesTokenCount).
			Msg("gemini receipt ocr call")
	}

	return ocr.ParseModelResponse(result.Text(), g.Name())
}
