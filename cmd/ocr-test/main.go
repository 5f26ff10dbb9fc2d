package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr/providers"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <receipt-image> [receipt-image ...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY     - Key for the gemini provider\n")
		fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY     - Key for the openai provider\n")
		fmt.Fprintf(os.Stderr, "  OPENROUTER_API_KEY - Key for the openrouter provider\n")
		fmt.Fprintf(os.Stderr, "  OCR_PROVIDERS      - Comma-separated try order (default gemini,openai,openrouter)\n")
		os.Exit(1)
	}

	var images []ocr.ImageInput
	format := ocr.FormatJPEG
	for _, path := range os.Args[1:] {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
			os.Exit(1)
		}
		format = formatOf(path)
		images = append(images, ocr.ImageInput{
			Data:   base64.StdEncoding.EncodeToString(data),
			Format: format,
		})
	}

	registry := ocr.NewRegistry()
	providers.RegisterAll(registry)
	orchestrator := ocr.NewOrchestrator(registry)

	envKeys := map[string]string{
		"gemini":     "GEMINI_API_KEY",
		"openai":     "OPENAI_API_KEY",
		"openrouter": "OPENROUTER_API_KEY",
	}
	resolveKey := func(provider string) string {
		return os.Getenv(envKeys[provider])
	}

	result, err := orchestrator.Run(context.Background(), images, format.MIMEType(), resolveKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "OCR failed: %v\n", err)
		os.Exit(1)
	}

	printResult(result)
}

func printResult(result *ocr.Result) {
	r := result.Receipt
	fmt.Printf("Merchant:  %s\n", r.Merchant)
	fmt.Printf("Date:      %s\n", r.Date)
	fmt.Printf("Total:     %.2f %s\n", r.Total, r.Currency)
	fmt.Println()
	for _, item := range r.Items {
		fmt.Printf("  %-30s x%-5.4g %8.2f  (%s)\n", item.Name, item.Quantity, item.TotalPrice, item.NormalizedName)
	}
	fmt.Println()
	fmt.Printf("Provider:  %s (tried %s) in %dms\n", result.Provider, strings.Join(result.ProvidersTried, ", "), result.ElapsedMS)
	if result.FallbackReason != "" {
		fmt.Printf("Fallback:  %s\n", result.FallbackReason)
	}
}

func formatOf(path string) ocr.ImageFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return ocr.FormatPNG
	case ".webp":
		return ocr.FormatWebP
	default:
		return ocr.FormatJPEG
	}
}
