package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-inr-arb/internal/models"
)

// maxAlertItems caps how many opportunities one alert lists.
const maxAlertItems = 5

// MessageSender is the subset of the Telegram client the notifier needs.
type MessageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramNotifier sends one alert per non-empty batch to a fixed chat.
type TelegramNotifier struct {
	sender MessageSender
	chatID int64
	logger *logrus.Logger
}

// NewTelegramNotifier creates a notifier from a bot token. It returns nil and
// no error when token is empty so callers can skip registration.
func NewTelegramNotifier(token string, chatID int64, logger *logrus.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, nil
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required when a bot token is set")
	}
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return newTelegramNotifier(b, chatID, logger), nil
}

func newTelegramNotifier(sender MessageSender, chatID int64, logger *logrus.Logger) *TelegramNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &TelegramNotifier{sender: sender, chatID: chatID, logger: logger}
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Publish(ctx context.Context, batch *models.OpportunityBatch) error {
	if len(batch.Opportunities) == 0 {
		return nil
	}

	_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      formatOpportunityAlert(batch),
		ParseMode: tgmodels.ParseModeMarkdown,
	})
	if err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"component":     "telegram",
		"batch_id":      batch.ID.String(),
		"opportunities": len(batch.Opportunities),
	}).Debug("Sent opportunity alert")
	return nil
}

func formatOpportunityAlert(batch *models.OpportunityBatch) string {
	var sb strings.Builder
	sb.WriteString("🚨 *INR/USD Arbitrage Alert*\n\n")
	sb.WriteString(fmt.Sprintf("USD/INR: %s (%s)\n", batch.Rate.Rate.StringFixed(2), batch.Rate.Source))
	sb.WriteString(fmt.Sprintf("Found %d opportunities:\n\n", len(batch.Opportunities)))

	top := batch.Opportunities
	if len(top) > maxAlertItems {
		top = top[:maxAlertItems]
	}
	for i, opp := range top {
		sb.WriteString(fmt.Sprintf("*%d. %s* %s\n", i+1, opp.Symbol, opp.Signal))
		sb.WriteString(fmt.Sprintf("Spread: *%s%%*\n", opp.SpreadPercent.StringFixed(2)))
		sb.WriteString(fmt.Sprintf("INR: ₹%s (≈ $%s)\n", opp.INRPrice.StringFixed(2), opp.INRPriceNormalized.StringFixed(4)))
		sb.WriteString(fmt.Sprintf("USD: $%s\n", opp.USDPrice.StringFixed(4)))
		sb.WriteString(fmt.Sprintf("Confidence: %.2f\n\n", opp.Confidence))
	}
	if extra := len(batch.Opportunities) - len(top); extra > 0 {
		sb.WriteString(fmt.Sprintf("...and %d more\n", extra))
	}
	return sb.String()
}
