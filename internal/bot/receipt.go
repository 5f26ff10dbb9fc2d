package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
	"github.com/vzakharchenko/telegram-budget-bot/internal/storage"
)

// pendingReceipt is a parsed receipt awaiting /confirm.
type pendingReceipt struct {
	receipt  *ocr.ParsedReceipt
	provider string // registry name of the provider that parsed it
}

// handleReceiptPhoto downloads the largest photo size, runs it through the
// OCR orchestrator and parks the result until the user confirms.
func (b *Bot) handleReceiptPhoto(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	b.reply(msg.Chat.ID, MsgReceiptProcessing)

	// Telegram orders PhotoSize ascending; take the largest.
	photo := msg.Photo[len(msg.Photo)-1]
	data, err := downloadFileID(b.tg.GetFileDirectURL, photo.FileID)
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to download receipt photo")
		b.replyError(msg.Chat.ID, err)
		return
	}

	images := []ocr.ImageInput{{
		Data:   base64.StdEncoding.EncodeToString(data),
		Format: ocr.FormatJPEG,
	}}

	resolveKey := func(provider string) string {
		key, err := b.store.GetProviderKey(userID, provider)
		if err != nil {
			log.Error().Err(err).Str("provider", provider).Msg("provider key lookup failed")
			return ""
		}
		return key
	}

	result, err := b.orchestrator.Run(ctx, images, ocr.FormatJPEG.MIMEType(), resolveKey)
	if err != nil {
		b.reply(msg.Chat.ID, ocrFailureMessage(err, b.supportedProviderNames()))
		return
	}

	b.mu.Lock()
	b.pending[userID] = &pendingReceipt{receipt: result.Receipt, provider: result.Provider}
	b.mu.Unlock()

	b.reply(msg.Chat.ID, formatReceiptSummary(result))
}

// ocrFailureMessage maps an orchestrator error onto user guidance. A
// configuration problem asks for a key, a terminal failure asks for a better
// photo, an exhausted fallback chain asks for patience.
func ocrFailureMessage(err error, supported string) string {
	if errors.Is(err, ocr.ErrNoProviders) {
		return formatReplyText(MsgNoProviderKeys, supported)
	}
	ocrErr := ocr.Classify(err)
	if !ocrErr.Retryable {
		return fmt.Sprintf(MsgOcrTerminalFailure, ocrErr.Kind)
	}
	return fmt.Sprintf(MsgOcrExhausted, ocrErr.Kind)
}

func formatReceiptSummary(result *ocr.Result) string {
	r := result.Receipt
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s, %s\n", r.Merchant, r.Date)
	for _, item := range r.Items {
		fmt.Fprintf(&sb, "  %s  x%g  %.2f\n", item.Name, item.Quantity, item.TotalPrice)
	}
	fmt.Fprintf(&sb, "Total: %.2f %s\n", r.Total, r.Currency)
	fmt.Fprintf(&sb, "(parsed by %s in %dms)\n", result.Provider, result.ElapsedMS)
	if result.FallbackReason != "" {
		fmt.Fprintf(&sb, "(fallback: %s)\n", result.FallbackReason)
	}
	sb.WriteString("\n/confirm to save, /cancel to discard")
	return sb.String()
}

func (b *Bot) takePending(userID int64) *pendingReceipt {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.pending[userID]
	delete(b.pending, userID)
	return p
}

func (b *Bot) handleConfirm(msg *tgbotapi.Message) {
	userID := msg.From.ID
	p := b.takePending(userID)
	if p == nil {
		b.reply(msg.Chat.ID, MsgNothingToConfirm)
		return
	}

	wallet, err := b.defaultWallet(userID, p.receipt.Currency)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}

	amount := decimal.NewFromFloat(p.receipt.Total)
	billingTag := p.provider
	if provider, ok := b.registry.Get(p.provider); ok {
		billingTag = provider.BillingTag()
	}

	tx := &storage.Transaction{
		UserID:      userID,
		WalletID:    wallet.ID,
		Amount:      amount,
		Currency:    p.receipt.Currency,
		Merchant:    p.receipt.Merchant,
		Date:        p.receipt.Date,
		Source:      "receipt",
		OcrProvider: billingTag,
	}
	if err := b.store.CreateTransaction(tx, p.receipt.Items); err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("failed to save receipt transaction")
		b.replyError(msg.Chat.ID, err)
		return
	}
	if err := b.store.AdjustWalletBalance(wallet.ID, amount.Neg()); err != nil {
		log.Error().Err(err).Int64("walletID", wallet.ID).Msg("failed to adjust wallet balance")
	}

	log.Info().
		Str("transactionID", tx.ID).
		Int64("userID", userID).
		Str("merchant", tx.Merchant).
		Str("ocrProvider", billingTag).
		Msg("receipt transaction saved")
	b.reply(msg.Chat.ID, fmt.Sprintf(MsgReceiptSaved, amount.StringFixed(2), tx.Merchant, wallet.Name))
}

func (b *Bot) handleCancel(msg *tgbotapi.Message) {
	if b.takePending(msg.From.ID) == nil {
		b.reply(msg.Chat.ID, MsgNothingToConfirm)
		return
	}
	b.reply(msg.Chat.ID, MsgReceiptDiscarded)
}

// defaultWallet returns the user's first wallet, creating a Cash wallet in
// the receipt's currency when they have none yet.
func (b *Bot) defaultWallet(userID int64, currency string) (*storage.Wallet, error) {
	wallets, err := b.store.GetWallets(userID)
	if err != nil {
		return nil, err
	}
	if len(wallets) > 0 {
		return &wallets[0], nil
	}
	if currency == "" {
		currency = "EUR"
	}
	return b.store.CreateWallet(userID, "Cash", currency)
}
