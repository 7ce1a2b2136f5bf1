package booking

import (
	"github.com/asaskevich/EventBus"
	"github.com/salonbook/salonbook/internal/domain"
)

// Bus topics published by the lifecycle manager.
const (
	TopicBookingCreated       = "booking:created"
	TopicBookingStatusChanged = "booking:status_changed"
	TopicSlotsBlocked         = "booking:slots_blocked"
)

// StatusChange is the payload for TopicBookingStatusChanged.
type StatusChange struct {
	Booking  *domain.Booking
	Previous domain.BookingStatus
}

// BlockNotice is the payload for TopicSlotsBlocked.
type BlockNotice struct {
	Count  int
	Reason string
}

func (m *Manager) publish(topic string, arg interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, arg)
}

// Bus exposes the event bus for subscribers.
func (m *Manager) Bus() EventBus.Bus {
	return m.bus
}
