package providers

import "github.com/vzakharchenko/telegram-budget-bot/internal/ocr"

// RegisterAll wires every built-in provider into reg. Registration is keyed
// by name, so calling this more than once (hot reload, duplicate startup
// paths) is a no-op rather than a double registration.
func RegisterAll(reg *ocr.Registry) {
	reg.Register(&GeminiProvider{})
	reg.Register(&OpenAIProvider{})
	reg.Register(&OpenRouterProvider{})
}
