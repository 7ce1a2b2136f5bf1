// Package notify delivers booking lifecycle notifications over email and an
// optional webhook. Delivery failures are logged and never surfaced back into
// the transaction that produced the event.
package notify

import (
	"fmt"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/guonaihong/gout"
	"github.com/salonbook/salonbook/internal/booking"
	"github.com/salonbook/salonbook/internal/domain"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"
)

type Config struct {
	SmtpHost     string
	SmtpPort     int
	SmtpUsername string
	SmtpPassword string
	SmtpFrom     string
	// WebhookURL is resolved per event so the setting can change at runtime.
	WebhookURL func() string
}

type Notifier struct {
	db  *gorm.DB
	cfg Config
}

func NewNotifier(db *gorm.DB, cfg Config) *Notifier {
	return &Notifier{db: db, cfg: cfg}
}

// Subscribe attaches the notifier to the lifecycle topics. Handlers run
// asynchronously so delivery latency never blocks a request.
func (n *Notifier) Subscribe(bus EventBus.Bus) error {
	if err := bus.SubscribeAsync(booking.TopicBookingCreated, n.onBookingCreated, false); err != nil {
		return err
	}
	if err := bus.SubscribeAsync(booking.TopicBookingStatusChanged, n.onStatusChanged, false); err != nil {
		return err
	}
	return nil
}

func (n *Notifier) onBookingCreated(b *domain.Booking) {
	n.postWebhook("booking.created", map[string]interface{}{
		"booking_id": b.ID,
		"user_id":    b.UserId,
		"service_id": b.ServiceId,
		"status":     b.Status,
	})
}

func (n *Notifier) onStatusChanged(change *booking.StatusChange) {
	b := change.Booking
	n.postWebhook("booking.status_changed", map[string]interface{}{
		"booking_id": b.ID,
		"user_id":    b.UserId,
		"from":       change.Previous,
		"to":         b.Status,
	})

	switch b.Status {
	case domain.BookingConfirmed:
		n.sendMail(b, "Booking confirmed",
			"Your booking has been confirmed. We look forward to seeing you.")
	case domain.BookingCancelled:
		n.sendMail(b, "Booking cancelled",
			"Your booking has been cancelled.")
	case domain.BookingPending, domain.BookingCompleted:
	}
}

func (n *Notifier) sendMail(b *domain.Booking, subject, body string) {
	if n.cfg.SmtpHost == "" {
		return
	}

	var user domain.SysOpr
	if err := n.db.First(&user, b.UserId).Error; err != nil || user.Email == "" || user.Email == "N/A" {
		return
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.SmtpFrom)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", fmt.Sprintf("%s\n\nBooking reference: %d", body, b.ID))

	d := gomail.NewDialer(n.cfg.SmtpHost, n.cfg.SmtpPort, n.cfg.SmtpUsername, n.cfg.SmtpPassword)
	if err := d.DialAndSend(m); err != nil {
		zap.L().Warn("booking mail delivery failed",
			zap.Int64("booking_id", b.ID), zap.Error(err))
		return
	}
	zap.L().Info("booking mail sent",
		zap.Int64("booking_id", b.ID), zap.String("subject", subject))
}

func (n *Notifier) postWebhook(event string, payload map[string]interface{}) {
	url := ""
	if n.cfg.WebhookURL != nil {
		url = n.cfg.WebhookURL()
	}
	if url == "" {
		return
	}

	payload["event"] = event
	payload["ts"] = time.Now().Unix()

	var code int
	err := gout.POST(url).
		SetJSON(payload).
		Code(&code).
		SetTimeout(5 * time.Second).
		Do()
	if err != nil || code >= 300 {
		zap.L().Warn("webhook delivery failed",
			zap.String("event", event), zap.Int("code", code), zap.Error(err))
	}
}
