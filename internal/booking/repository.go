package booking

import (
	"context"
	"time"

	"github.com/salonbook/salonbook/internal/domain"
	"gorm.io/gorm"
)

// SlotRepository is the read-side access to time slots.
type SlotRepository interface {
	// GetByID retrieves a slot by ID
	GetByID(ctx context.Context, id int64) (*domain.TimeSlot, error)

	// ListUsable retrieves usable (available, unblocked) slots of a service
	// from the given date on
	ListUsable(ctx context.Context, serviceID int64, from time.Time) ([]domain.TimeSlot, error)

	// ListBlocked retrieves blocked slots from the given date on
	ListBlocked(ctx context.Context, from time.Time) ([]domain.TimeSlot, error)

	// ListRange retrieves slot IDs inside a date range and time band
	ListRange(ctx context.Context, from, to time.Time, startTime, endTime string) ([]int64, error)
}

// BookingRepository is the read-side access to bookings.
type BookingRepository interface {
	// GetByID retrieves a booking by ID
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)

	// ListByUser retrieves a user's bookings, newest first
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)

	// ListExpiredPending retrieves IDs of pending bookings created before cutoff
	ListExpiredPending(ctx context.Context, cutoff time.Time) ([]int64, error)

	// ListPastConfirmed retrieves IDs of confirmed bookings whose slot date is
	// strictly before today
	ListPastConfirmed(ctx context.Context, today time.Time) ([]int64, error)

	// CountByStatus counts bookings per status
	CountByStatus(ctx context.Context, status domain.BookingStatus) (int64, error)
}

// ReviewRepository is the read-side access to reviews.
type ReviewRepository interface {
	// ListByUser retrieves reviews authored by a user, newest first
	ListByUser(ctx context.Context, userID int64) ([]domain.Review, error)

	// ServiceRatings retrieves all ratings given to a service
	ServiceRatings(ctx context.Context, serviceID int64) ([]float64, error)
}

// GormSlotRepository is the GORM implementation of SlotRepository
type GormSlotRepository struct {
	db *gorm.DB
}

func NewGormSlotRepository(db *gorm.DB) *GormSlotRepository {
	return &GormSlotRepository{db: db}
}

func (r *GormSlotRepository) GetByID(ctx context.Context, id int64) (*domain.TimeSlot, error) {
	var slot domain.TimeSlot
	err := r.db.WithContext(ctx).First(&slot, id).Error
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

func (r *GormSlotRepository) ListUsable(ctx context.Context, serviceID int64, from time.Time) ([]domain.TimeSlot, error) {
	var slots []domain.TimeSlot
	err := r.db.WithContext(ctx).
		Where("service_id = ? AND date >= ? AND available = ? AND blocked = ?",
			serviceID, Midnight(from), true, false).
		Order("date, start_time").
		Find(&slots).Error
	return slots, err
}

func (r *GormSlotRepository) ListBlocked(ctx context.Context, from time.Time) ([]domain.TimeSlot, error) {
	var slots []domain.TimeSlot
	err := r.db.WithContext(ctx).
		Where("blocked = ? AND date >= ?", true, Midnight(from)).
		Order("date, start_time").
		Find(&slots).Error
	return slots, err
}

func (r *GormSlotRepository) ListRange(ctx context.Context, from, to time.Time, startTime, endTime string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&domain.TimeSlot{}).
		Where("date >= ? AND date <= ? AND start_time >= ? AND end_time <= ?",
			Midnight(from), Midnight(to), startTime, endTime).
		Order("date, start_time").
		Pluck("id", &ids).Error
	return ids, err
}

// GormBookingRepository is the GORM implementation of BookingRepository
type GormBookingRepository struct {
	db *gorm.DB
}

func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

func (r *GormBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).First(&b, id).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *GormBookingRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	var bookings []domain.Booking
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&bookings).Error
	return bookings, err
}

func (r *GormBookingRepository) ListExpiredPending(ctx context.Context, cutoff time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("status = ? AND created_at < ?", domain.BookingPending, cutoff).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *GormBookingRepository) ListPastConfirmed(ctx context.Context, today time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Joins("JOIN booking_time_slot ts ON ts.id = booking_booking.time_slot_id").
		Where("booking_booking.status = ? AND ts.date < ?", domain.BookingConfirmed, Midnight(today)).
		Pluck("booking_booking.id", &ids).Error
	return ids, err
}

func (r *GormBookingRepository) CountByStatus(ctx context.Context, status domain.BookingStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("status = ?", status).Count(&count).Error
	return count, err
}

// GormReviewRepository is the GORM implementation of ReviewRepository
type GormReviewRepository struct {
	db *gorm.DB
}

func NewGormReviewRepository(db *gorm.DB) *GormReviewRepository {
	return &GormReviewRepository{db: db}
}

func (r *GormReviewRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Review, error) {
	var reviews []domain.Review
	err := r.db.WithContext(ctx).
		Joins("JOIN booking_booking b ON b.id = booking_review.booking_id").
		Where("b.user_id = ?", userID).
		Order("booking_review.created_at DESC").
		Find(&reviews).Error
	return reviews, err
}

func (r *GormReviewRepository) ServiceRatings(ctx context.Context, serviceID int64) ([]float64, error) {
	var ratings []float64
	err := r.db.WithContext(ctx).Model(&domain.Review{}).
		Joins("JOIN booking_booking b ON b.id = booking_review.booking_id").
		Where("b.service_id = ?", serviceID).
		Pluck("booking_review.rating", &ratings).Error
	return ratings, err
}

// Midnight normalizes t to the start of its day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
