package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable provider for orchestrator tests.
type fakeProvider struct {
	name      string
	available bool
	receipt   *ParsedReceipt
	err       error
	calls     int
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) BillingTag() string { return f.name }
func (f *fakeProvider) Available() bool    { return f.available }

func (f *fakeProvider) ParseReceipt(ctx context.Context, images []ImageInput, apiKey, mimeType string) (*ParsedReceipt, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

func testReceipt() *ParsedReceipt {
	return &ParsedReceipt{
		Total:    100,
		Merchant: "Test Store",
		Date:     "2025-01-01",
		Currency: "USD",
		Items: []ParsedReceiptItem{
			{Name: "Item", NormalizedName: "item", Quantity: 1, PricePerUnit: 100, TotalPrice: 100},
		},
	}
}

func allKeys(string) string { return "test-key" }

func testImages() []ImageInput {
	return []ImageInput{{Data: "aGVsbG8=", Format: FormatJPEG}}
}

func TestRunFirstProviderSucceeds(t *testing.T) {
	t.Setenv(EnvProviderOrder, "a,b")
	reg := NewRegistry()
	a := &fakeProvider{name: "a", available: true, receipt: testReceipt()}
	b := &fakeProvider{name: "b", available: true, receipt: testReceipt()}
	reg.Register(a)
	reg.Register(b)

	res, err := NewOrchestrator(reg).Run(context.Background(), testImages(), "image/jpeg", allKeys)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Provider)
	assert.Equal(t, []string{"a"}, res.ProvidersTried)
	assert.Empty(t, res.FallbackReason)
	assert.Equal(t, 0, b.calls)
	assert.Equal(t, testReceipt(), res.Receipt)
}

func TestRunFallsBackOnRetryableError(t *testing.T) {
	t.Setenv(EnvProviderOrder, "a,b")
	reg := NewRegistry()
	a := &fakeProvider{name: "a", available: true, err: errors.New("Request failed: 429")}
	b := &fakeProvider{name: "b", available: true, receipt: testReceipt()}
	reg.Register(a)
	reg.Register(b)

	res, err := NewOrchestrator(reg).Run(context.Background(), testImages(), "image/jpeg", allKeys)
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, []string{"a", "b"}, res.ProvidersTried)
	assert.Contains(t, res.FallbackReason, "RATE_LIMITED")
	assert.Contains(t, res.FallbackReason, "a")
	assert.Equal(t, "item", res.Receipt.Items[0].NormalizedName)
}

func TestRunAbortsOnNonRetryableError(t *testing.T) {
	t.Setenv(EnvProviderOrder, "a,b")
	reg := NewRegistry()
	parseErr := NewError(KindParseFailed, "failed to parse a response as JSON")
	a := &fakeProvider{name: "a", available: true, err: parseErr}
	b := &fakeProvider{name: "b", available: true, receipt: testReceipt()}
	reg.Register(a)
	reg.Register(b)

	_, err := NewOrchestrator(reg).Run(context.Background(), testImages(), "image/jpeg", allKeys)
	require.Error(t, err)
	var ocrErr *Error
	require.ErrorAs(t, err, &ocrErr)
	assert.Same(t, parseErr, ocrErr)
	assert.Equal(t, 0, b.calls, "second provider must never be invoked after a terminal error")
}

func TestRunSkipsUnusableProviders(t *testing.T) {
	tests := []struct {
		name       string
		order      string
		setup      func(reg *Registry) *fakeProvider // returns the provider expected to win
		resolveKey KeyResolver
		wantTried  []string
	}{
		{
			name:  "unregistered entries are skipped without placeholders",
			order: "ghost,b",
			setup: func(reg *Registry) *fakeProvider {
				b := &fakeProvider{name: "b", available: true, receipt: testReceipt()}
				reg.Register(b)
				return b
			},
			resolveKey: allKeys,
			wantTried:  []string{"b"},
		},
		{
			name:  "unavailable provider is skipped",
			order: "a,b",
			setup: func(reg *Registry) *fakeProvider {
				reg.Register(&fakeProvider{name: "a", available: false, receipt: testReceipt()})
				b := &fakeProvider{name: "b", available: true, receipt: testReceipt()}
				reg.Register(b)
				return b
			},
			resolveKey: allKeys,
			wantTried:  []string{"b"},
		},
		{
			name:  "provider without key is skipped",
			order: "a,b",
			setup: func(reg *Registry) *fakeProvider {
				reg.Register(&fakeProvider{name: "a", available: true, receipt: testReceipt()})
				b := &fakeProvider{name: "b", available: true, receipt: testReceipt()}
				reg.Register(b)
				return b
			},
			resolveKey: func(name string) string {
				if name == "a" {
					return ""
				}
				return "key"
			},
			wantTried: []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvProviderOrder, tt.order)
			reg := NewRegistry()
			winner := tt.setup(reg)

			res, err := NewOrchestrator(reg).Run(context.Background(), testImages(), "image/jpeg", tt.resolveKey)
			require.NoError(t, err)
			assert.Equal(t, winner.Name(), res.Provider)
			assert.Equal(t, tt.wantTried, res.ProvidersTried)
		})
	}
}

func TestRunNoProvidersAvailable(t *testing.T) {
	t.Setenv(EnvProviderOrder, "a,b")
	reg := NewRegistry()
	a := &fakeProvider{name: "a", available: true, receipt: testReceipt()}
	b := &fakeProvider{name: "b", available: true, receipt: testReceipt()}
	reg.Register(a)
	reg.Register(b)

	noKeys := func(string) string { return "" }
	_, err := NewOrchestrator(reg).Run(context.Background(), testImages(), "image/jpeg", noKeys)
	require.ErrorIs(t, err, ErrNoProviders)
	assert.Equal(t, 0, a.calls)
	assert.Equal(t, 0, b.calls)
}

func TestRunAllProvidersFailReturnsLastError(t *testing.T) {
	t.Setenv(EnvProviderOrder, "a,b")
	reg := NewRegistry()
	reg.Register(&fakeProvider{name: "a", available: true, err: errors.New("Request failed: 429")})
	reg.Register(&fakeProvider{name: "b", available: true, err: errors.New("upstream returned 503")})

	_, err := NewOrchestrator(reg).Run(context.Background(), testImages(), "image/jpeg", allKeys)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoProviders)
	var ocrErr *Error
	require.ErrorAs(t, err, &ocrErr)
	assert.Equal(t, KindProviderDown, ocrErr.Kind)
	assert.Contains(t, ocrErr.Message, "503")
}

func TestRunEndToEndFallbackScenario(t *testing.T) {
	t.Setenv(EnvProviderOrder, "A,B")
	reg := NewRegistry()
	reg.Register(&fakeProvider{name: "A", available: true, err: errors.New("Request failed: 429")})
	reg.Register(&fakeProvider{name: "B", available: true, receipt: func() *ParsedReceipt {
		r, err := ParseModelResponse(validReceiptJSON, "B")
		if err != nil {
			panic(err)
		}
		return r
	}()})

	res, err := NewOrchestrator(reg).Run(context.Background(), testImages(), "image/jpeg", allKeys)
	require.NoError(t, err)
	assert.Equal(t, "B", res.Provider)
	assert.Equal(t, []string{"A", "B"}, res.ProvidersTried)
	require.Len(t, res.Receipt.Items, 1)
	assert.Equal(t, "item", res.Receipt.Items[0].NormalizedName)
}
