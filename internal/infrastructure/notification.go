package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/music-miko/t/internal/domain"
)

// NotificationService raises operator alerts through the desktop notifier
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		config: config,
		logger: logger,
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	cmd, err := n.command(title, message)
	if err != nil {
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err := cmd.Run(); err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent", zap.String("title", title))
	return nil
}

func (n *NotificationService) command(title, message string) (*exec.Cmd, error) {
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, appleScriptEscape(message), appleScriptEscape(title))
		return exec.Command("osascript", "-e", script), nil
	case "notify-send":
		return exec.Command("notify-send", "--", title, message), nil
	default:
		return nil, fmt.Errorf("unknown notification method: %s", n.config.Method)
	}
}

// NotifyAuthFailure alerts the operator that the job API rejected the key
func (n *NotificationService) NotifyAuthFailure(status int, bodyPreview string) {
	message := fmt.Sprintf("Job API returned %d: %s", status, truncateString(bodyPreview, 60))
	n.Send("Job API key rejected", message)
}

func appleScriptEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
