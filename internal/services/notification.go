package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/sirupsen/logrus"

	"github.com/nbrons/perp-prophet/internal/models"
)

// ErrNotificationsDisabled is returned when no bot or no chat is configured.
var ErrNotificationsDisabled = errors.New("telegram notifications not configured")

// MessageSender delivers a plain text message to one chat.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type telegramSender struct {
	bot *bot.Bot
}

func (s *telegramSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	return err
}

// NewTelegramSender creates a sender backed by the Telegram Bot API.
func NewTelegramSender(token string) (MessageSender, error) {
	telegramBot, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &telegramSender{bot: telegramBot}, nil
}

// NotificationService sends alerts to the configured Telegram chats.
type NotificationService struct {
	sender  MessageSender
	chatIDs []int64
	logger  *logrus.Entry
}

// NewNotificationService creates the service. A nil sender or an empty chat
// list disables delivery.
func NewNotificationService(sender MessageSender, chatIDs []int64, logger *logrus.Logger) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationService{
		sender:  sender,
		chatIDs: chatIDs,
		logger:  logger.WithField("component", "notification"),
	}
}

// Enabled reports whether alerts will actually be delivered.
func (ns *NotificationService) Enabled() bool {
	return ns.sender != nil && len(ns.chatIDs) > 0
}

// Notify sends alert to every chat. Failures for individual chats are joined.
func (ns *NotificationService) Notify(ctx context.Context, alert models.Alert) error {
	if !ns.Enabled() {
		return ErrNotificationsDisabled
	}

	message := ns.formatAlertMessage(alert)

	var errs []error
	for _, chatID := range ns.chatIDs {
		if err := ns.sender.SendMessage(ctx, chatID, message); err != nil {
			ns.logger.WithError(err).WithField("chat_id", chatID).Warn("Failed to send telegram message")
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			continue
		}
		ns.logger.WithFields(logrus.Fields{
			"chat_id": chatID,
			"kind":    alert.Kind,
		}).Info("Sent alert")
	}
	return errors.Join(errs...)
}

// formatAlertMessage renders the plain text body of an alert.
func (ns *NotificationService) formatAlertMessage(alert models.Alert) string {
	var sb strings.Builder

	sb.WriteString("🔔 Perp Prophet alert\n\n")
	sb.WriteString(alert.Message)
	sb.WriteString("\n\n")
	if alert.ReportID != "" {
		sb.WriteString(fmt.Sprintf("Report: %s\n", alert.ReportID))
	}
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	sb.WriteString(fmt.Sprintf("⏰ %s UTC", createdAt.UTC().Format("2006-01-02 15:04:05")))

	return sb.String()
}
