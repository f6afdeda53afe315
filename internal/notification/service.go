// Package notification renders registry events into messages and delivers
// them by email. Delivery failures are logged and recorded, never returned to
// the operation that triggered them.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"devreg/internal/domain"
	"devreg/pkg/logger"
	"devreg/pkg/mailer"
)

// LogRepository records delivery attempts.
type LogRepository interface {
	Create(ctx context.Context, log *domain.NotificationLog) error
}

// UserRepository resolves a user's email address.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// ChannelType represents the delivery method.
type ChannelType string

const (
	ChannelEmail ChannelType = "EMAIL"
	ChannelLog   ChannelType = "LOG"
)

// Notification is a rendered message.
type Notification struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	Recipient string
	Type      string
	Subject   string
	Body      string
	CreatedAt time.Time
}

// Service is the notification contract used by the domain services.
type Service interface {
	Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error
	NotifyEmail(ctx context.Context, email string, eventType string, data map[string]interface{}) error
}

// DefaultService is the concrete implementation. A nil sender logs messages
// instead of mailing them.
type DefaultService struct {
	logger  logger.Logger
	users   UserRepository
	sender  mailer.Sender
	logRepo LogRepository
	timeout time.Duration
}

// NewService creates a new notification service.
func NewService(log logger.Logger, users UserRepository, sender mailer.Sender, logRepo LogRepository) *DefaultService {
	return &DefaultService{
		logger:  log,
		users:   users,
		sender:  sender,
		logRepo: logRepo,
		timeout: 15 * time.Second,
	}
}

// Notify renders eventType for a registered user and delivers it.
func (s *DefaultService) Notify(ctx context.Context, userID uuid.UUID, eventType string, data map[string]interface{}) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("Notification recipient not found", map[string]interface{}{
			"user_id": userID,
			"type":    eventType,
			"error":   err.Error(),
		})
		return nil
	}

	n := Render(eventType, data)
	n.UserID = &user.ID
	n.Recipient = user.Email
	return s.SendRaw(ctx, n)
}

// NotifyEmail delivers to an address that may not belong to an account yet.
func (s *DefaultService) NotifyEmail(ctx context.Context, email string, eventType string, data map[string]interface{}) error {
	n := Render(eventType, data)
	n.Recipient = email
	return s.SendRaw(ctx, n)
}

// SendRaw delivers a rendered notification and records the attempt.
func (s *DefaultService) SendRaw(ctx context.Context, n *Notification) error {
	channel := ChannelLog
	var sendErr error
	if s.sender != nil {
		channel = ChannelEmail
		sendErr = s.sender.Send(n.Recipient, n.Subject, n.Body)
	}

	fields := map[string]interface{}{
		"notification_id": n.ID,
		"recipient":       n.Recipient,
		"channel":         channel,
		"type":            n.Type,
		"subject":         n.Subject,
	}
	if sendErr != nil {
		fields["error"] = sendErr.Error()
		s.logger.Error("Notification delivery failed", fields)
	} else {
		s.logger.Info("Notification sent", fields)
	}

	if s.logRepo != nil {
		entry := &domain.NotificationLog{
			ID:        n.ID,
			UserID:    n.UserID,
			Recipient: n.Recipient,
			EventType: n.Type,
			Channel:   string(channel),
			Subject:   n.Subject,
			Delivered: sendErr == nil,
			CreatedAt: n.CreatedAt,
		}
		if sendErr != nil {
			msg := sendErr.Error()
			entry.Error = &msg
		}

		// The request context may already be done when this runs in the background.
		logCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := s.logRepo.Create(logCtx, entry); err != nil {
			s.logger.Error("Failed to record notification", map[string]interface{}{
				"error":           err.Error(),
				"notification_id": n.ID,
			})
		}
	}

	return nil
}

// Render builds the subject and body for an event.
func Render(eventType string, data map[string]interface{}) *Notification {
	var subject, body string

	switch eventType {
	case "DEVICE_STATUS_CHANGED":
		subject = "Device status updated"
		body = fmt.Sprintf("The status of your device %v is now %v.", data["imei"], data["status"])

	case "TRANSFER_REQUESTED":
		subject = "A device is being transferred to you"
		body = fmt.Sprintf("You have been offered ownership of a %v %v (IMEI %v). Accept or reject before %v.",
			data["brand"], data["model"], data["imei"], data["expires_at"])
		if msg, ok := data["message"].(*string); ok && msg != nil {
			body += fmt.Sprintf("\n\nMessage from the owner: %s", *msg)
		}

	case "TRANSFER_ACCEPTED":
		subject = "Transfer accepted"
		body = fmt.Sprintf("Your ownership transfer %v was accepted. Complete it to hand the device over.", data["transfer_id"])

	case "TRANSFER_REJECTED":
		subject = "Transfer rejected"
		body = fmt.Sprintf("Your ownership transfer %v was rejected.", data["transfer_id"])

	case "TRANSFER_CANCELLED":
		subject = "Transfer cancelled"
		body = fmt.Sprintf("The ownership transfer %v offered to you was withdrawn.", data["transfer_id"])

	case "TRANSFER_COMPLETED":
		subject = "Transfer completed"
		body = fmt.Sprintf("Ownership transfer %v is complete.", data["transfer_id"])

	case "TRANSFER_EXPIRED":
		subject = "Transfer expired"
		body = fmt.Sprintf("Ownership transfer %v expired on %v without being completed.", data["transfer_id"], data["expired_at"])

	case "ACCOUNT_CREATED":
		subject = "Your device has been registered"
		body = fmt.Sprintf("A %v device (IMEI %v) was registered in your name and an account was created for you.\n\nTemporary password: %v\nPlease change it after signing in.",
			data["brand"], data["imei"], data["temporary_password"])

	default:
		subject = "Notification"
		body = fmt.Sprintf("Event: %s", eventType)
	}

	return &Notification{
		ID:        uuid.New(),
		Type:      eventType,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}
