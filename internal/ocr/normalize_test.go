package ocr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReceiptJSON = `{"total": 100, "merchant": "Test Store", "date": "2025-01-01", "currency": "USD", "items": [{"name": "Item", "quantity": 1, "pricePerUnit": 100, "totalPrice": 100}]}`

func TestParseModelResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{
			name: "bare json",
			text: validReceiptJSON,
		},
		{
			name: "fenced with language tag",
			text: "```json\n" + validReceiptJSON + "\n```",
		},
		{
			name: "fenced without language tag",
			text: "```\n" + validReceiptJSON + "\n```",
		},
		{
			name: "surrounding whitespace",
			text: "\n  " + validReceiptJSON + "  \n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receipt, err := ParseModelResponse(tt.text, "gemini")
			require.NoError(t, err)
			assert.Equal(t, 100.0, receipt.Total)
			assert.Equal(t, "Test Store", receipt.Merchant)
			assert.Equal(t, "2025-01-01", receipt.Date)
			assert.Equal(t, "USD", receipt.Currency)
			require.Len(t, receipt.Items, 1)
			assert.Equal(t, "Item", receipt.Items[0].Name)
			assert.Equal(t, "item", receipt.Items[0].NormalizedName)
		})
	}
}

func TestParseModelResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "empty string", text: ""},
		{name: "whitespace only", text: "   \n\t  "},
		{name: "non-json text", text: "I could not read this receipt, sorry."},
		{name: "missing items array", text: `{"total": 5, "merchant": "X", "date": "2025-01-01"}`},
		{name: "items not an array", text: `{"total": 5, "merchant": "X", "date": "2025-01-01", "items": "none"}`},
		{name: "truncated json", text: `{"total": 5, "merchant": "X", "items": [`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseModelResponse(tt.text, "gemini")
			require.Error(t, err)
			ocrErr := Classify(err)
			assert.Equal(t, KindParseFailed, ocrErr.Kind)
			assert.False(t, ocrErr.Retryable)
			assert.Contains(t, ocrErr.Message, "gemini")
		})
	}
}

func TestParseModelResponseErrorExcerptIsBounded(t *testing.T) {
	long := "not json " + string(make([]byte, 5000))
	_, err := ParseModelResponse(long, "openai")
	require.Error(t, err)
	assert.Less(t, len(err.Error()), 400)
}

func TestNormalizeItemName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "latin unit with digits", raw: "Orange Juice 1L", want: "orange juice"},
		{name: "different unit volume", raw: "orange juice 2l", want: "orange juice"},
		{name: "already normalized", raw: "orange juice", want: "orange juice"},
		{name: "percentage stripped", raw: "Молоко 2.5%", want: "молоко"},
		{name: "cyrillic count unit", raw: "Хлеб 1 шт", want: "хлеб"},
		{name: "cyrillic weight unit", raw: "Сыр 200г", want: "сыр"},
		{name: "kilograms", raw: "Potatoes 2.5 kg", want: "potatoes"},
		{name: "pieces", raw: "Eggs 10pcs", want: "eggs"},
		{name: "unit word not stripped from inside", raw: "Olive Oil", want: "olive oil"},
		{name: "punctuation removed", raw: "Coca-Cola 0,5 л", want: "coca cola"},
		{name: "whitespace collapsed", raw: "  green   tea  ", want: "green tea"},
		{name: "empty input", raw: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeItemName(tt.raw)
			assert.Equal(t, tt.want, got)
			// Normalization is idempotent.
			assert.Equal(t, got, NormalizeItemName(got))
		})
	}
}

func TestNormalizeItemNameJoinsAcrossReceipts(t *testing.T) {
	assert.Equal(t, NormalizeItemName("Orange Juice 1L"), NormalizeItemName("orange juice"))
	assert.Equal(t, NormalizeItemName("Молоко 1 л"), NormalizeItemName("молоко"))
}
