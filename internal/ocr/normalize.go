package ocr

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// errorExcerptLen caps how much of an unparseable model response ends up in
// the error message. Enough to diagnose, not enough to leak the payload.
const errorExcerptLen = 200

// ParseModelResponse extracts a ParsedReceipt from free-form model output.
// Models wrap their JSON in markdown fences more often than not, so a single
// surrounding code block (with or without a language tag) is stripped before
// parsing. No other repair is attempted: behavior must stay reproducible.
// All failures are tagged KindParseFailed.
func ParseModelResponse(text, provider string) (*ParsedReceipt, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, NewError(KindParseFailed, "empty response from %s", provider)
	}

	text = stripCodeFence(text)

	if !gjson.Valid(text) {
		return nil, NewError(KindParseFailed, "failed to parse %s response as JSON: %s", provider, excerpt(text))
	}
	items := gjson.Get(text, "items")
	if !items.Exists() || !items.IsArray() {
		return nil, NewError(KindParseFailed, "missing or invalid items array in %s response: %s", provider, excerpt(text))
	}

	var receipt ParsedReceipt
	if err := json.Unmarshal([]byte(text), &receipt); err != nil {
		return nil, NewError(KindParseFailed, "failed to parse %s response: %v: %s", provider, err, excerpt(text))
	}

	for i := range receipt.Items {
		receipt.Items[i].NormalizedName = NormalizeItemName(receipt.Items[i].Name)
	}
	return &receipt, nil
}

// stripCodeFence removes one optional markdown code fence surrounding the
// whole text, tolerating a language tag after the opening backticks.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	body := strings.TrimPrefix(text, "```")
	// Drop a language tag like "json" on the opening fence line.
	if idx := strings.IndexByte(body, '\n'); idx != -1 {
		firstLine := strings.TrimSpace(body[:idx])
		if firstLine == "" || !strings.ContainsAny(firstLine, "{[") {
			body = body[idx+1:]
		}
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}

func excerpt(text string) string {
	if len(text) > errorExcerptLen {
		return text[:errorExcerptLen]
	}
	return text
}

var (
	// Trailing volume/weight/count tokens in Latin and Cyrillic scripts,
	// with optional leading digits: "1L", "0.5 l", "2шт", bare "kg".
	unitSuffixRe = regexp.MustCompile(`(?i)(\s+\d*[.,]?\d*\s*|\d+[.,]?\d*\s*)(ml|l|kg|g|pcs|шт|л|кг|г)\.?\s*$`)
	nonLetterRe  = regexp.MustCompile(`[^\p{L} ]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeItemName canonicalizes a line-item name into a stable comparison
// key so that "Orange Juice 1L" and "orange juice 2l" join across receipts.
// It lowercases, strips trailing unit tokens, drops everything that is not
// a letter or space, and collapses whitespace. Idempotent on its own output.
func NormalizeItemName(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = unitSuffixRe.ReplaceAllString(s, "")
	s = nonLetterRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
