package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoProviders is returned when the try-order yields zero usable
// providers (none registered, none available, or no key resolvable for
// any of them). It signals a configuration problem, as opposed to every
// provider being attempted and failing.
var ErrNoProviders = errors.New("no ocr providers available")

// KeyResolver looks up the API key for a provider name. An empty string
// means no key is configured and the provider is skipped. The lookup is
// injected by the caller so this package never knows how credentials are
// stored or billed.
type KeyResolver func(providerName string) string

// Orchestrator walks the configured try-order, invoking one provider at a
// time and falling back on retryable failures.
type Orchestrator struct {
	registry *Registry
}

// NewOrchestrator returns an orchestrator dispatching over reg.
func NewOrchestrator(reg *Registry) *Orchestrator {
	return &Orchestrator{registry: reg}
}

// Run attempts providers strictly sequentially in the resolved try-order
// until one produces a receipt.
//
// Unregistered, unavailable and keyless providers are skipped and do not
// count as attempts. A provider failure already tagged with a non-retryable
// kind aborts the run immediately: it is a property of the input, so every
// remaining provider would fail the same way. Any other failure is recorded
// and the loop moves on. If the loop exhausts after at least one attempt,
// the last recorded error is returned; with zero attempts, ErrNoProviders.
func (o *Orchestrator) Run(ctx context.Context, images []ImageInput, mimeType string, resolveKey KeyResolver) (*Result, error) {
	order := TryOrder()

	var (
		tried          []string
		lastErr        error
		fallbackReason string
	)

	for _, name := range order {
		provider, ok := o.registry.Get(name)
		if !ok {
			log.Debug().Str("provider", name).Msg("ocr provider not registered, skipping")
			continue
		}
		if !provider.Available() {
			log.Debug().Str("provider", name).Msg("ocr provider unavailable, skipping")
			continue
		}
		key := resolveKey(name)
		if key == "" {
			log.Debug().Str("provider", name).Msg("no api key for ocr provider, skipping")
			continue
		}

		tried = append(tried, name)
		start := time.Now()
		receipt, err := provider.ParseReceipt(ctx, images, key, mimeType)
		elapsed := time.Since(start).Milliseconds()

		if err == nil {
			log.Info().
				Str("provider", name).
				Strs("providersTried", tried).
				Int("items", len(receipt.Items)).
				Int64("elapsedMs", elapsed).
				Msg("ocr succeeded")
			return &Result{
				Receipt:        receipt,
				Provider:       name,
				ProvidersTried: append([]string(nil), tried...),
				FallbackReason: fallbackReason,
				ElapsedMS:      elapsed,
			}, nil
		}

		var tagged *Error
		if errors.As(err, &tagged) && !tagged.Retryable {
			// The failure is a property of the input; every remaining
			// provider would fail the same way.
			log.Error().
				Str("provider", name).
				Strs("providersTried", tried).
				Str("kind", string(tagged.Kind)).
				Int64("elapsedMs", elapsed).
				Err(err).
				Msg("ocr failed with non-retryable error")
			return nil, err
		}

		classified := Classify(err)
		lastErr = classified
		fallbackReason = fmt.Sprintf("%s failed (%s): %s", name, classified.Kind, classified.Message)
		log.Warn().
			Str("provider", name).
			Str("kind", string(classified.Kind)).
			Int64("elapsedMs", elapsed).
			Err(err).
			Msg("ocr provider failed, falling back")
	}

	if len(tried) == 0 {
		log.Error().Strs("order", order).Msg("no usable ocr providers in try-order")
		return nil, ErrNoProviders
	}
	return nil, lastErr
}
