package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/vzakharchenko/telegram-budget-bot/internal/budget"
	"github.com/vzakharchenko/telegram-budget-bot/internal/ocr"
)

func (b *Bot) handleBalance(msg *tgbotapi.Message) {
	wallets, err := b.store.GetWallets(msg.From.ID)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if len(wallets) == 0 {
		b.reply(msg.Chat.ID, MsgNoWallets)
		return
	}
	var sb strings.Builder
	for _, w := range wallets {
		fmt.Fprintf(&sb, "%s: %s %s\n", w.Name, w.Balance.StringFixed(2), w.Currency)
	}
	b.reply(msg.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) handleBudget(msg *tgbotapi.Message) {
	month := budget.CurrentMonth()
	statuses, err := budget.ForMonth(b.store, msg.From.ID, month)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if len(statuses) == 0 {
		b.reply(msg.Chat.ID, fmt.Sprintf(MsgNoBudgets, month))
		return
	}

	names := make(map[int64]string)
	if cats, err := b.store.GetCategories(msg.From.ID); err == nil {
		for _, c := range cats {
			names[c.ID] = c.Name
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Budgets for %s:\n", month)
	for _, s := range statuses {
		name := names[s.CategoryID]
		if name == "" {
			name = fmt.Sprintf("category %d", s.CategoryID)
		}
		marker := ""
		if s.Overspent() {
			marker = " (over!)"
		}
		fmt.Fprintf(&sb, "%s: %s / %s (%d%%)%s\n",
			name, s.Spent.StringFixed(2), s.Limit.StringFixed(2), s.Progress(), marker)
	}
	b.reply(msg.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) handlePrices(msg *tgbotapi.Message, args []string) {
	if len(args) == 0 {
		b.reply(msg.Chat.ID, MsgPricesUsage)
		return
	}
	query := strings.Join(args, " ")
	normalized := ocr.NormalizeItemName(query)
	points, err := b.store.PriceHistory(msg.From.ID, normalized)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if len(points) == 0 {
		b.reply(msg.Chat.ID, fmt.Sprintf(MsgNoPriceHistory, query))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Prices for %q:\n", normalized)
	for _, p := range points {
		fmt.Fprintf(&sb, "%s  %s  %.2f\n", p.Date, p.Merchant, p.PricePerUnit)
	}
	b.reply(msg.Chat.ID, strings.TrimRight(sb.String(), "\n"))
}
