// Package bot is the Telegram front-end of the budget tracker: receipt
// photos in, confirmed transactions out.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
	"github.com/vzakharchenko/telegram-budget-bot/internal/storage"
)

// BotAPI defines the Telegram bot API operations the bot depends on.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Bot routes Telegram updates to handlers.
type Bot struct {
	tg           BotAPI
	store        storage.Store
	registry     *ocr.Registry
	orchestrator *ocr.Orchestrator

	mu      sync.Mutex
	pending map[int64]*pendingReceipt // keyed by user ID
}

// NewBot creates a Bot. The registry decides which OCR providers receipt
// photos are dispatched to.
func NewBot(tg BotAPI, store storage.Store, registry *ocr.Registry) *Bot {
	return &Bot{
		tg:           tg,
		store:        store,
		registry:     registry,
		orchestrator: ocr.NewOrchestrator(registry),
		pending:      make(map[int64]*pendingReceipt),
	}
}

// HandleUpdate is the main update router.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case len(msg.Photo) > 0:
		b.handleReceiptPhoto(ctx, msg)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd, args := parseCommand(msg.Text)
	userID := msg.From.ID

	switch strings.TrimPrefix(cmd, "/") {
	case "start", "help":
		b.reply(msg.Chat.ID, formatReplyText(MsgStart))
	case "confirm":
		b.handleConfirm(msg)
	case "cancel":
		b.handleCancel(msg)
	case "balance":
		b.handleBalance(msg)
	case "budget":
		b.handleBudget(msg)
	case "prices":
		b.handlePrices(msg, args)
	case "setkey":
		b.handleSetKey(msg, args)
	case "delkey":
		b.handleDelKey(msg, args)
	default:
		log.Debug().Str("command", cmd).Int64("userID", userID).Msg("unknown command")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		log.Error().Err(err).Int64("chatID", chatID).Msg("failed to send message")
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	b.reply(chatID, fmt.Sprintf(MsgUnexpectedErr, err))
}

// supportedProviderNames lists registry entries for user-facing messages.
func (b *Bot) supportedProviderNames() string {
	names := b.registry.Names()
	return strings.Join(names, ", ")
}

func (b *Bot) handleSetKey(msg *tgbotapi.Message, args []string) {
	if len(args) < 2 {
		b.reply(msg.Chat.ID, MsgSetKeyUsage)
		return
	}
	provider := args[0]
	key := strings.Join(args[1:], " ")
	if _, ok := b.registry.Get(provider); !ok {
		b.reply(msg.Chat.ID, fmt.Sprintf(MsgUnknownProvider, provider, b.supportedProviderNames()))
		return
	}
	if err := b.store.SetProviderKey(msg.From.ID, provider, key); err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("failed to store provider key")
		b.replyError(msg.Chat.ID, err)
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(MsgKeySaved, provider))
}

func (b *Bot) handleDelKey(msg *tgbotapi.Message, args []string) {
	if len(args) != 1 {
		b.reply(msg.Chat.ID, MsgDelKeyUsage)
		return
	}
	if err := b.store.DeleteProviderKey(msg.From.ID, args[0]); err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf(MsgKeyDeleted, args[0]))
}

// Command defines a bot command and its Telegram menu description.
type Command struct {
	Name        string
	Description string
}

var botCommands = []Command{
	{Name: "balance", Description: "Show wallet balances"},
	{Name: "budget", Description: "Show this month's budgets"},
	{Name: "prices", Description: "Price history for an item"},
	{Name: "setkey", Description: "Store an OCR provider API key"},
	{Name: "delkey", Description: "Remove a stored provider key"},
	{Name: "confirm", Description: "Save the last parsed receipt"},
	{Name: "cancel", Description: "Discard the last parsed receipt"},
}

// RegisterCommands sets the bot's command menu in Telegram. Called once at
// startup.
func RegisterCommands(tg *tgbotapi.BotAPI) {
	commands := make([]tgbotapi.BotCommand, len(botCommands))
	for i, cmd := range botCommands {
		commands[i] = tgbotapi.BotCommand{Command: cmd.Name, Description: cmd.Description}
	}
	if _, err := tg.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		log.Error().Err(err).Msg("failed to set bot commands")
	} else {
		log.Info().Int("count", len(commands)).Msg("registered bot commands")
	}
}
