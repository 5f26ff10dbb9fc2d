package storage

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	key, err := DeriveKey("test passphrase")
	require.NoError(t, err)
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWalletCRUD(t *testing.T) {
	store := newTestStore(t)

	w, err := store.CreateWallet(1, "Cash", "EUR")
	require.NoError(t, err)
	assert.True(t, w.Balance.IsZero())

	require.NoError(t, store.AdjustWalletBalance(w.ID, decimal.RequireFromString("100.50")))
	require.NoError(t, store.AdjustWalletBalance(w.ID, decimal.RequireFromString("-0.25")))

	got, err := store.GetWallet(w.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("100.25")))

	wallets, err := store.GetWallets(1)
	require.NoError(t, err)
	assert.Len(t, wallets, 1)

	_, err = store.GetWallet(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionWithReceiptItems(t *testing.T) {
	store := newTestStore(t)

	w, err := store.CreateWallet(1, "Cash", "EUR")
	require.NoError(t, err)

	tx := &Transaction{
		UserID:      1,
		WalletID:    w.ID,
		Amount:      decimal.RequireFromString("12.47"),
		Currency:    "EUR",
		Merchant:    "Lidl",
		Date:        "2025-01-01",
		Source:      "receipt",
		OcrProvider: "google",
	}
	items := []ocr.ParsedReceiptItem{
		{Name: "Orange Juice 1L", NormalizedName: "orange juice", Quantity: 1, PricePerUnit: 2.49, TotalPrice: 2.49},
		{Name: "Молоко 2.5%", NormalizedName: "молоко", Quantity: 2, PricePerUnit: 1.10, TotalPrice: 2.20},
	}
	require.NoError(t, store.CreateTransaction(tx, items))
	assert.NotEmpty(t, tx.ID, "uuid assigned on insert")

	txs, err := store.GetTransactions(1, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("12.47")))
	assert.Equal(t, "google", txs[0].OcrProvider)

	stored, err := store.GetReceiptItems(tx.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "orange juice", stored[0].NormalizedName)
}

func TestPriceHistoryJoinsByNormalizedName(t *testing.T) {
	store := newTestStore(t)
	w, err := store.CreateWallet(1, "Cash", "EUR")
	require.NoError(t, err)

	receipts := []struct {
		merchant string
		date     string
		name     string
		price    float64
	}{
		{"Lidl", "2025-01-01", "Orange Juice 1L", 2.49},
		{"Prisma", "2025-02-01", "orange juice 2l", 4.10},
		{"Lidl", "2025-01-15", "Bread", 1.20},
	}
	for _, r := range receipts {
		tx := &Transaction{
			UserID:   1,
			WalletID: w.ID,
			Amount:   decimal.NewFromFloat(r.price),
			Currency: "EUR",
			Merchant: r.merchant,
			Date:     r.date,
			Source:   "receipt",
		}
		items := []ocr.ParsedReceiptItem{{
			Name:           r.name,
			NormalizedName: ocr.NormalizeItemName(r.name),
			Quantity:       1,
			PricePerUnit:   r.price,
			TotalPrice:     r.price,
		}}
		require.NoError(t, store.CreateTransaction(tx, items))
	}

	points, err := store.PriceHistory(1, "orange juice")
	require.NoError(t, err)
	require.Len(t, points, 2, "unit variants join on the normalized name")
	assert.Equal(t, "Prisma", points[0].Merchant, "newest first")
}

func TestBudgets(t *testing.T) {
	store := newTestStore(t)
	w, err := store.CreateWallet(1, "Cash", "EUR")
	require.NoError(t, err)
	cat, err := store.CreateCategory(1, "Groceries")
	require.NoError(t, err)

	b := MonthBudget{UserID: 1, CategoryID: cat.ID, Month: "2025-01", Limit: decimal.RequireFromString("300")}
	require.NoError(t, store.SetBudget(b))
	// Upsert overwrites.
	b.Limit = decimal.RequireFromString("350")
	require.NoError(t, store.SetBudget(b))

	budgets, err := store.GetBudgets(1, "2025-01")
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.True(t, budgets[0].Limit.Equal(decimal.RequireFromString("350")))

	for _, amount := range []string{"20.10", "9.90"} {
		tx := &Transaction{
			UserID:     1,
			WalletID:   w.ID,
			CategoryID: cat.ID,
			Amount:     decimal.RequireFromString(amount),
			Currency:   "EUR",
			Date:       "2025-01-05",
		}
		require.NoError(t, store.CreateTransaction(tx, nil))
	}

	spent, err := store.SpentByCategory(1, "2025-01")
	require.NoError(t, err)
	assert.True(t, spent[cat.ID].Equal(decimal.RequireFromString("30")))
}

func TestProviderKeysEncryptedRoundTrip(t *testing.T) {
	store := newTestStore(t)

	key, err := store.GetProviderKey(1, "gemini")
	require.NoError(t, err)
	assert.Empty(t, key, "missing key resolves to empty string")

	require.NoError(t, store.SetProviderKey(1, "gemini", "AIza-test-key"))
	key, err = store.GetProviderKey(1, "gemini")
	require.NoError(t, err)
	assert.Equal(t, "AIza-test-key", key)

	// Key is not stored in the clear.
	var raw string
	err = store.db.QueryRow(`SELECT encrypted_key FROM provider_keys WHERE user_id = 1 AND provider = 'gemini'`).Scan(&raw)
	require.NoError(t, err)
	assert.NotContains(t, raw, "AIza-test-key")

	require.NoError(t, store.DeleteProviderKey(1, "gemini"))
	key, err = store.GetProviderKey(1, "gemini")
	require.NoError(t, err)
	assert.Empty(t, key)
}
