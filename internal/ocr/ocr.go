// Package ocr turns photographed receipts into structured transaction data by
// dispatching to interchangeable vision-AI providers with ordered fallback.
package ocr

import "context"

// ImageFormat is the encoding of a receipt photo.
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatWebP ImageFormat = "webp"
)

// MIMEType returns the MIME type for the format.
func (f ImageFormat) MIMEType() string {
	return "image/" + string(f)
}

// ImageInput is a single receipt photo: base64-encoded image bytes plus the
// format tag. A request carries one or more of these (multi-photo receipts).
type ImageInput struct {
	Data   string      // base64-encoded image bytes
	Format ImageFormat // jpeg, png or webp
}

// ParsedReceiptItem is a single line item on a receipt.
// NormalizedName is derived by the normalizer and used as a stable join key
// for price comparison across receipts; callers never set it themselves.
type ParsedReceiptItem struct {
	Name           string  `json:"name"`
	NormalizedName string  `json:"normalizedName,omitempty"`
	Quantity       float64 `json:"quantity"`
	PricePerUnit   float64 `json:"pricePerUnit"`
	TotalPrice     float64 `json:"totalPrice"`
	Currency       string  `json:"currency,omitempty"` // per-item override, rarely set
}

// ParsedReceipt is the structured output of a successful OCR run.
type ParsedReceipt struct {
	Total    float64             `json:"total"`
	Merchant string              `json:"merchant"`
	Date     string              `json:"date"`
	Currency string              `json:"currency,omitempty"`
	Items    []ParsedReceiptItem `json:"items"`
}

// Result wraps a ParsedReceipt with run metadata. It is constructed only by
// the orchestrator on success and is never partially filled.
type Result struct {
	Receipt *ParsedReceipt
	// Provider is the name of the provider that produced the receipt.
	Provider string
	// ProvidersTried lists the providers actually attempted, in order,
	// ending with the one that succeeded.
	ProvidersTried []string
	// FallbackReason is a human-readable note on why the previous provider
	// was abandoned. Empty when the first attempted provider succeeded.
	FallbackReason string
	// ElapsedMS is the duration of the successful provider call.
	ElapsedMS int64
}

// Provider is one interchangeable vision-AI backend capable of turning
// receipt images into structured data.
type Provider interface {
	// Name is the registry key, e.g. "gemini".
	Name() string
	// BillingTag identifies the billing provider for credit charging.
	// It is opaque to this package.
	BillingTag() string
	// Available reports whether the backend can be used in this build.
	// It must never panic: a provider that cannot even report its own
	// availability is skipped, not crashed on.
	Available() bool
	// ParseReceipt runs the receipt images through the backend. Any error
	// it returns is passed through Classify before the orchestrator acts
	// on it.
	ParseReceipt(ctx context.Context, images []ImageInput, apiKey, mimeType string) (*ParsedReceipt, error)
}
