// Package storage persists budget data in SQLite: wallets, categories,
// transactions with their receipt line items, monthly budgets and per-user
// provider API keys (encrypted at rest).
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Wallet is a money account belonging to a user.
type Wallet struct {
	ID       int64
	UserID   int64
	Name     string
	Currency string
	Balance  decimal.Decimal
}

// Category groups transactions for budgeting.
type Category struct {
	ID     int64
	UserID int64
	Name   string
}

// Transaction is a single expense or income row.
type Transaction struct {
	ID         string // uuid
	UserID     int64
	WalletID   int64
	CategoryID int64
	Amount     decimal.Decimal
	Currency   string
	Merchant   string
	Date       string // YYYY-MM-DD
	Source     string // "manual", "receipt", "api"
	// OcrProvider is the billing tag of the provider that parsed the
	// receipt, empty for manual entries.
	OcrProvider string
	CreatedAt   time.Time
}

// ReceiptItem is a persisted receipt line item. NormalizedName is the join
// key for price history across receipts.
type ReceiptItem struct {
	ID             int64
	TransactionID  string
	Name           string
	NormalizedName string
	Quantity       float64
	PricePerUnit   float64
	TotalPrice     float64
}

// PricePoint is one observation of an item's unit price.
type PricePoint struct {
	Merchant     string
	Date         string
	PricePerUnit float64
}

// MonthBudget is a spending limit for a category in a given month.
type MonthBudget struct {
	UserID     int64
	CategoryID int64
	Month      string // YYYY-MM
	Limit      decimal.Decimal
}

// Store defines the persistence interface used by the bot and the web API.
type Store interface {
	CreateWallet(userID int64, name, currency string) (*Wallet, error)
	GetWallets(userID int64) ([]Wallet, error)
	GetWallet(id int64) (*Wallet, error)
	AdjustWalletBalance(id int64, delta decimal.Decimal) error

	CreateCategory(userID int64, name string) (*Category, error)
	GetCategories(userID int64) ([]Category, error)

	CreateTransaction(tx *Transaction, items []ocr.ParsedReceiptItem) error
	GetTransactions(userID int64, limit int) ([]Transaction, error)
	GetReceiptItems(transactionID string) ([]ReceiptItem, error)
	PriceHistory(userID int64, normalizedName string) ([]PricePoint, error)

	SetBudget(b MonthBudget) error
	GetBudgets(userID int64, month string) ([]MonthBudget, error)
	SpentByCategory(userID int64, month string) (map[int64]decimal.Decimal, error)

	SetProviderKey(userID int64, provider, key string) error
	GetProviderKey(userID int64, provider string) (string, error)
	DeleteProviderKey(userID int64, provider string) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
// encryptionKey is used for provider API keys only.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		// Ignore error if file doesn't exist yet
	}

	store := &SQLiteStore{db: db, encryptionKey: encryptionKey}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0',
		UNIQUE(user_id, name)
	);
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		UNIQUE(user_id, name)
	);
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		wallet_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL DEFAULT 0,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		merchant TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'manual',
		ocr_provider TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_user_date ON transactions(user_id, date);
	CREATE TABLE IF NOT EXISTS receipt_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id TEXT NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		normalized_name TEXT NOT NULL,
		quantity REAL NOT NULL,
		price_per_unit REAL NOT NULL,
		total_price REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_receipt_items_normalized ON receipt_items(normalized_name);
	CREATE TABLE IF NOT EXISTS budgets (
		user_id INTEGER NOT NULL,
		category_id INTEGER NOT NULL,
		month TEXT NOT NULL,
		limit_amount TEXT NOT NULL,
		PRIMARY KEY (user_id, category_id, month)
	);
	CREATE TABLE IF NOT EXISTS provider_keys (
		user_id INTEGER NOT NULL,
		provider TEXT NOT NULL,
		encrypted_key TEXT NOT NULL,
		PRIMARY KEY (user_id, provider)
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// CreateWallet inserts a wallet with a zero balance.
func (s *SQLiteStore) CreateWallet(userID int64, name, currency string) (*Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO wallets (user_id, name, currency) VALUES (?, ?, ?)`,
		userID, name, currency,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Wallet{ID: id, UserID: userID, Name: name, Currency: currency, Balance: decimal.Zero}, nil
}

// GetWallets returns all wallets of a user ordered by name.
func (s *SQLiteStore) GetWallets(userID int64) ([]Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, name, currency, balance FROM wallets WHERE user_id = ? ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	var wallets []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

// GetWallet returns a single wallet or ErrNotFound.
func (s *SQLiteStore) GetWallet(id int64) (*Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWallet(id)
}

func (s *SQLiteStore) getWallet(id int64) (*Wallet, error) {
	row := s.db.QueryRow(`SELECT id, user_id, name, currency, balance FROM wallets WHERE id = ?`, id)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return w, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*Wallet, error) {
	var w Wallet
	var balance string
	if err := row.Scan(&w.ID, &w.UserID, &w.Name, &w.Currency, &balance); err != nil {
		return nil, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("corrupt wallet balance %q: %w", balance, err)
	}
	w.Balance = b
	return &w, nil
}

// AdjustWalletBalance applies a signed delta to the wallet balance.
func (s *SQLiteStore) AdjustWalletBalance(id int64, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, err := s.getWallet(id)
	if err != nil {
		return err
	}

	next := wallet.Balance.Add(delta)
	if _, err := s.db.Exec(`UPDATE wallets SET balance = ? WHERE id = ?`, next.String(), id); err != nil {
		return fmt.Errorf("failed to update wallet balance: %w", err)
	}
	return nil
}

// CreateCategory inserts a category.
func (s *SQLiteStore) CreateCategory(userID int64, name string) (*Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO categories (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Category{ID: id, UserID: userID, Name: name}, nil
}

// GetCategories returns all categories of a user ordered by name.
func (s *SQLiteStore) GetCategories(userID int64) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, user_id, name FROM categories WHERE user_id = ? ORDER BY name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// CreateTransaction inserts a transaction and its receipt items in one
// database transaction. A missing ID is filled with a fresh uuid.
func (s *SQLiteStore) CreateTransaction(tx *Transaction, items []ocr.ParsedReceiptItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.Exec(
		`INSERT INTO transactions (id, user_id, wallet_id, category_id, amount, currency, merchant, date, source, ocr_provider, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.WalletID, tx.CategoryID, tx.Amount.String(), tx.Currency,
		tx.Merchant, tx.Date, tx.Source, tx.OcrProvider, tx.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for _, item := range items {
		_, err = dbTx.Exec(
			`INSERT INTO receipt_items (transaction_id, name, normalized_name, quantity, price_per_unit, total_price)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			tx.ID, item.Name, item.NormalizedName, item.Quantity, item.PricePerUnit, item.TotalPrice,
		)
		if err != nil {
			return fmt.Errorf("failed to insert receipt item: %w", err)
		}
	}

	return dbTx.Commit()
}

// GetTransactions returns a user's most recent transactions.
func (s *SQLiteStore) GetTransactions(userID int64, limit int) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, user_id, wallet_id, category_id, amount, currency, merchant, date, source, ocr_provider, created_at
		 FROM transactions WHERE user_id = ? ORDER BY date DESC, created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		var amount string
		var createdAt int64
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.WalletID, &tx.CategoryID, &amount, &tx.Currency,
			&tx.Merchant, &tx.Date, &tx.Source, &tx.OcrProvider, &createdAt); err != nil {
			return nil, err
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt transaction amount %q: %w", amount, err)
		}
		tx.Amount = a
		tx.CreatedAt = time.Unix(createdAt, 0)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// GetReceiptItems returns the line items of a transaction.
func (s *SQLiteStore) GetReceiptItems(transactionID string) ([]ReceiptItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, transaction_id, name, normalized_name, quantity, price_per_unit, total_price
		 FROM receipt_items WHERE transaction_id = ? ORDER BY id`,
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipt items: %w", err)
	}
	defer rows.Close()

	var items []ReceiptItem
	for rows.Next() {
		var it ReceiptItem
		if err := rows.Scan(&it.ID, &it.TransactionID, &it.Name, &it.NormalizedName,
			&it.Quantity, &it.PricePerUnit, &it.TotalPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// PriceHistory returns unit-price observations for a normalized item name
// across all of a user's receipts, newest first.
func (s *SQLiteStore) PriceHistory(userID int64, normalizedName string) ([]PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT t.merchant, t.date, ri.price_per_unit
		 FROM receipt_items ri
		 JOIN transactions t ON t.id = ri.transaction_id
		 WHERE t.user_id = ? AND ri.normalized_name = ?
		 ORDER BY t.date DESC`,
		userID, normalizedName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Merchant, &p.Date, &p.PricePerUnit); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SetBudget upserts a monthly category budget.
func (s *SQLiteStore) SetBudget(b MonthBudget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO budgets (user_id, category_id, month, limit_amount) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, category_id, month) DO UPDATE SET limit_amount = excluded.limit_amount`,
		b.UserID, b.CategoryID, b.Month, b.Limit.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert budget: %w", err)
	}
	return nil
}

// GetBudgets returns a user's budgets for a month.
func (s *SQLiteStore) GetBudgets(userID int64, month string) ([]MonthBudget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT user_id, category_id, month, limit_amount FROM budgets WHERE user_id = ? AND month = ?`,
		userID, month,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []MonthBudget
	for rows.Next() {
		var b MonthBudget
		var limit string
		if err := rows.Scan(&b.UserID, &b.CategoryID, &b.Month, &limit); err != nil {
			return nil, err
		}
		l, err := decimal.NewFromString(limit)
		if err != nil {
			return nil, fmt.Errorf("corrupt budget limit %q: %w", limit, err)
		}
		b.Limit = l
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// SpentByCategory sums transaction amounts per category for a month.
// Amounts are stored as decimal text, so summation happens here rather than
// in SQL.
func (s *SQLiteStore) SpentByCategory(userID int64, month string) (map[int64]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT category_id, amount FROM transactions WHERE user_id = ? AND date LIKE ?`,
		userID, month+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query spending: %w", err)
	}
	defer rows.Close()

	spent := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var categoryID int64
		var amount string
		if err := rows.Scan(&categoryID, &amount); err != nil {
			return nil, err
		}
		a, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt transaction amount %q: %w", amount, err)
		}
		spent[categoryID] = spent[categoryID].Add(a)
	}
	return spent, rows.Err()
}

// SetProviderKey stores an OCR provider API key for a user, encrypted.
func (s *SQLiteStore) SetProviderKey(userID int64, provider, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encrypted, err := Encrypt([]byte(key), s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt provider key: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO provider_keys (user_id, provider, encrypted_key) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, provider) DO UPDATE SET encrypted_key = excluded.encrypted_key`,
		userID, provider, encrypted,
	)
	if err != nil {
		return fmt.Errorf("failed to store provider key: %w", err)
	}
	return nil
}

// GetProviderKey returns a user's decrypted API key for a provider, or an
// empty string when none is stored.
func (s *SQLiteStore) GetProviderKey(userID int64, provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encrypted string
	err := s.db.QueryRow(
		`SELECT encrypted_key FROM provider_keys WHERE user_id = ? AND provider = ?`,
		userID, provider,
	).Scan(&encrypted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query provider key: %w", err)
	}

	plaintext, err := Decrypt(encrypted, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt provider key: %w", err)
	}
	return string(plaintext), nil
}

// DeleteProviderKey removes a stored provider key.
func (s *SQLiteStore) DeleteProviderKey(userID int64, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM provider_keys WHERE user_id = ? AND provider = ?`, userID, provider)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
