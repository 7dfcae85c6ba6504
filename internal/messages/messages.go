package messages

import (
	"fmt"
	"strings"

	"github.com/BatmanBruc/dmg-bot/internal/i18n"
)

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"*", "\\*",
		"_", "\\_",
		"~", "\\~",
		"`", "\\`",
		"|", "\\|",
		">", "\\>",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func Title(text string) string {
	return fmt.Sprintf("✨ **%s**", Escape(text))
}

func pick(lang i18n.Lang, en, ru string) string {
	if lang == i18n.RU {
		return ru
	}
	return en
}

func ErrorDefault(lang i18n.Lang) string {
	return pick(lang,
		"🚫 **Something went wrong**\nPlease try again.",
		"🚫 **Ошибка**\nПопробуйте ещё раз.")
}

func ErrorUnknownCommand(lang i18n.Lang) string {
	return pick(lang, "❓ **Unknown command**", "❓ **Команда не найдена**")
}

func ErrorGuildOnly(lang i18n.Lang) string {
	return pick(lang,
		"🏠 This command only works inside a server.",
		"🏠 Эта команда работает только на сервере.")
}

func ErrorFeatureFailed(lang i18n.Lang) string {
	return pick(lang,
		"🚫 **The request failed**\nNothing was counted against your demo uses. Please try again.",
		"🚫 **Запрос не удался**\nДемо-попытка не списана. Попробуйте ещё раз.")
}

func ErrorEmptyPrompt(lang i18n.Lang) string {
	return pick(lang, "✍️ Please provide some text.", "✍️ Укажите текст запроса.")
}

func DemoRemaining(lang i18n.Lang, remaining int) string {
	return pick(lang,
		fmt.Sprintf("🎟️ Demo uses left: **%d**", remaining),
		fmt.Sprintf("🎟️ Осталось демо-попыток: **%d**", remaining))
}

func DemoStatus(lang i18n.Lang, used, max int) string {
	return pick(lang,
		fmt.Sprintf("🎟️ **Demo**\nUsed %d of %d free requests in this server.", used, max),
		fmt.Sprintf("🎟️ **Демо**\nИспользовано %d из %d бесплатных запросов на этом сервере.", used, max))
}

func EntitledStatus(lang i18n.Lang, sponsor bool) string {
	if sponsor {
		return pick(lang,
			"💎 **Unlimited**\nThanks for supporting the server!",
			"💎 **Безлимит**\nСпасибо за поддержку сервера!")
	}
	return pick(lang,
		"💎 **Premium**\nYou have unlimited access in this server.",
		"💎 **Премиум**\nУ вас безлимитный доступ на этом сервере.")
}

// Upsell is shown when the demo quota is exhausted. It offers both ways to
// unlock: boosting the server or buying premium.
func Upsell(lang i18n.Lang, price string) string {
	return pick(lang,
		fmt.Sprintf("🔒 **Demo limit reached**\nYou have used all free requests in this server.\n\n"+
			"🚀 Boost the server to unlock unlimited access, or\n"+
			"💳 buy premium for **%s** with `/premium`.", Escape(price)),
		fmt.Sprintf("🔒 **Демо-лимит исчерпан**\nВы использовали все бесплатные запросы на этом сервере.\n\n"+
			"🚀 Забустите сервер, чтобы получить безлимит, или\n"+
			"💳 купите премиум за **%s** командой `/premium`.", Escape(price)))
}

func PayButton(lang i18n.Lang) string {
	return pick(lang, "Pay", "Оплатить")
}

func CheckButton(lang i18n.Lang) string {
	return pick(lang, "I paid", "Я оплатил")
}

func PaymentLink(lang i18n.Lang, reference, price string) string {
	return pick(lang,
		fmt.Sprintf("💳 **Premium for %s**\nReference: `%s`\n\nOpen the link to pay. Access is granted automatically once the payment clears.",
			Escape(price), reference),
		fmt.Sprintf("💳 **Премиум за %s**\nНомер: `%s`\n\nОткройте ссылку для оплаты. Доступ выдаётся автоматически после подтверждения платежа.",
			Escape(price), reference))
}

func PaymentUnavailable(lang i18n.Lang) string {
	return pick(lang,
		"⏳ **Payments are temporarily unavailable**\nPlease try again later.",
		"⏳ **Оплата временно недоступна**\nПопробуйте позже.")
}

func AlreadyPremium(lang i18n.Lang) string {
	return pick(lang,
		"💎 You already have premium in this server.",
		"💎 У вас уже есть премиум на этом сервере.")
}

func CheckPending(lang i18n.Lang) string {
	return pick(lang,
		"⏳ **Payment not received yet**\nIf you have just paid, give it a minute and check again.",
		"⏳ **Платёж ещё не поступил**\nЕсли вы только что оплатили, подождите минуту и проверьте снова.")
}

func CheckCompleted(lang i18n.Lang) string {
	return pick(lang,
		"✅ **Payment confirmed**\nPremium is active in this server.",
		"✅ **Платёж подтверждён**\nПремиум активирован на этом сервере.")
}

func NoPendingOrder(lang i18n.Lang) string {
	return pick(lang,
		"🤷 No open payment found. Use `/premium` to start one.",
		"🤷 Открытых платежей нет. Используйте `/premium`, чтобы начать.")
}

func PaymentConfirmedDM(reference string) string {
	return fmt.Sprintf("✅ **Payment confirmed**\nThank you! Premium is now active. Reference: `%s`", reference)
}

func AdminOnly(lang i18n.Lang) string {
	return pick(lang, "⛔ Administrators only.", "⛔ Только для администраторов.")
}

func AdminGranted(lang i18n.Lang, userID string, already bool) string {
	if already {
		return pick(lang,
			fmt.Sprintf("ℹ️ <@%s> already has premium.", userID),
			fmt.Sprintf("ℹ️ У <@%s> уже есть премиум.", userID))
	}
	return pick(lang,
		fmt.Sprintf("✅ Premium granted to <@%s>.", userID),
		fmt.Sprintf("✅ Премиум выдан <@%s>.", userID))
}

func AdminRevoked(lang i18n.Lang, userID string) string {
	return pick(lang,
		fmt.Sprintf("✅ Premium revoked for <@%s>.", userID),
		fmt.Sprintf("✅ Премиум отозван у <@%s>.", userID))
}

func AdminNotEntitled(lang i18n.Lang, userID string) string {
	return pick(lang,
		fmt.Sprintf("ℹ️ <@%s> has no completed payment in this server.", userID),
		fmt.Sprintf("ℹ️ У <@%s> нет оплаченного премиума на этом сервере.", userID))
}
