package bot

const (
	MsgStart = `Send me a photo of a receipt and I'll turn it into a transaction.

		Commands:
		/balance - show wallet balances
		/budget - show this month's budgets
		/prices <item> - price history for an item
		/setkey <provider> <api key> - store an OCR provider key
		/delkey <provider> - remove a stored key
		/confirm - save the last parsed receipt
		/cancel - discard the last parsed receipt`

	MsgUnexpectedErr     = "Unexpected error: %s"
	MsgReceiptProcessing = "Reading the receipt..."
	MsgNothingToConfirm  = "No parsed receipt waiting. Send a receipt photo first."
	MsgReceiptDiscarded  = "Receipt discarded."
	MsgReceiptSaved      = "Saved! %s at %s recorded to %s."

	MsgNoProviderKeys = `No OCR provider is configured.

		Add an API key with /setkey, for example:
		/setkey gemini <your key>

		Supported providers: %s`
	MsgOcrTerminalFailure = "I couldn't read that photo (%s). Try retaking it with the whole receipt visible."
	MsgOcrExhausted       = "All receipt readers are failing right now (%s). Try again in a bit."
	MsgSetKeyUsage        = "Usage: /setkey <provider> <api key>"
	MsgDelKeyUsage        = "Usage: /delkey <provider>"
	MsgUnknownProvider    = "Unknown provider %q. Supported: %s"
	MsgKeySaved           = "Key for %s saved."
	MsgKeyDeleted         = "Key for %s removed."
	MsgNoWallets          = "No wallets yet. One named Cash will be created with your first receipt."
	MsgNoBudgets          = "No budgets set for %s."
	MsgPricesUsage        = "Usage: /prices <item name>"
	MsgNoPriceHistory     = "No price history for %q yet."
)
