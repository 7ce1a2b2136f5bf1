package domain

import "time"

// Booking module related models

// BookingStatus is the closed set of booking lifecycle states.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Valid reports whether s is one of the defined statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

// Active reports whether the status holds a time slot.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

// ActiveStatuses are the statuses that keep a slot reserved.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed}

// Category groups services on the catalog page.
type Category struct {
	ID          int64     `json:"id,string" form:"id"`
	Name        string    `gorm:"index" json:"name" form:"name"`
	Description string    `json:"description" form:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Category) TableName() string {
	return "booking_category"
}

// Service is a bookable offering. Immutable during booking operations.
type Service struct {
	ID          int64     `json:"id,string" form:"id"`
	CategoryId  int64     `gorm:"index" json:"category_id,string" form:"category_id"`
	Name        string    `gorm:"index" json:"name" form:"name"`
	Description string    `json:"description" form:"description"`
	Price       float64   `json:"price" form:"price"`
	Duration    int       `json:"duration" form:"duration"` // minutes
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Service) TableName() string {
	return "booking_service"
}

// TimeSlot is a bookable (service, date, start-end time) unit.
// A slot is usable for booking iff Available && !Blocked; Blocked is set only
// by manager actions and overrides Available.
type TimeSlot struct {
	ID          int64      `json:"id,string" form:"id"`
	ServiceId   int64      `gorm:"index" json:"service_id,string" form:"service_id"`
	Date        time.Time  `gorm:"index" json:"date" form:"date"`       // date only, normalized to midnight
	StartTime   string     `json:"start_time" form:"start_time"`        // HH:MM
	EndTime     string     `json:"end_time" form:"end_time"`            // HH:MM
	Available   bool       `gorm:"default:true" json:"available" form:"available"`
	Blocked     bool       `gorm:"default:false" json:"blocked" form:"blocked"`
	BlockReason string     `json:"block_reason" form:"block_reason"`
	BlockedAt   *time.Time `json:"blocked_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName Specify table name
func (TimeSlot) TableName() string {
	return "booking_time_slot"
}

// Usable reports whether the slot can accept a new booking.
func (t TimeSlot) Usable() bool {
	return t.Available && !t.Blocked
}

// Booking references a user, a service and a time slot. At most one booking
// with an active status may reference a given time slot at any moment.
type Booking struct {
	ID           int64         `json:"id,string" form:"id"`
	UserId       int64         `gorm:"index" json:"user_id,string" form:"user_id"`
	ServiceId    int64         `gorm:"index" json:"service_id,string" form:"service_id"`
	TimeSlotId   int64         `gorm:"index" json:"time_slot_id,string" form:"time_slot_id"`
	Status       BookingStatus `gorm:"index;size:20" json:"status" form:"status"`
	Notes        string        `json:"notes" form:"notes"`
	ManagerId    int64         `json:"manager_id,string"`
	ManagerNotes string        `json:"manager_notes" form:"manager_notes"`
	CreatedAt    time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName Specify table name
func (Booking) TableName() string {
	return "booking_booking"
}

// Review rates a completed booking, at most one per booking.
type Review struct {
	ID        int64     `json:"id,string" form:"id"`
	BookingId int64     `gorm:"uniqueIndex" json:"booking_id,string" form:"booking_id"`
	Rating    int       `json:"rating" form:"rating"` // 1-5
	Comment   string    `json:"comment" form:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (Review) TableName() string {
	return "booking_review"
}
