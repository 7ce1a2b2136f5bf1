package booking

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultPendingTTL is how long an unconfirmed booking holds its slot.
const DefaultPendingTTL = time.Hour

// DefaultSweepWorkers bounds concurrent per-booking transitions in a sweep pass.
const DefaultSweepWorkers = 8

// Manager owns booking state transitions and the paired slot availability flag.
// Every write path runs inside its own transaction so a slot's available flag
// and a booking's status never diverge.
type Manager struct {
	db           *gorm.DB
	bus          EventBus.Bus
	slots        SlotRepository
	bookings     BookingRepository
	reviews      ReviewRepository
	pendingTTL   func() time.Duration
	sweepWorkers int
}

// Option configures a Manager.
type Option func(*Manager)

// WithPendingTTL sets a fixed pending-expiry threshold.
func WithPendingTTL(d time.Duration) Option {
	return func(m *Manager) { m.pendingTTL = func() time.Duration { return d } }
}

// WithPendingTTLFunc sets a threshold resolved at each sweep run, so the value
// can follow a settings table.
func WithPendingTTLFunc(f func() time.Duration) Option {
	return func(m *Manager) { m.pendingTTL = f }
}

// WithSweepWorkers sets the sweep worker pool size.
func WithSweepWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sweepWorkers = n
		}
	}
}

// NewManager creates a booking lifecycle manager. bus may be nil when no
// subscriber is interested in lifecycle events.
func NewManager(db *gorm.DB, bus EventBus.Bus, opts ...Option) *Manager {
	m := &Manager{
		db:           db,
		bus:          bus,
		slots:        NewGormSlotRepository(db),
		bookings:     NewGormBookingRepository(db),
		reviews:      NewGormReviewRepository(db),
		pendingTTL:   func() time.Duration { return DefaultPendingTTL },
		sweepWorkers: DefaultSweepWorkers,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Slots returns the slot read repository.
func (m *Manager) Slots() SlotRepository { return m.slots }

// Bookings returns the booking read repository.
func (m *Manager) Bookings() BookingRepository { return m.bookings }

// Reviews returns the review read repository.
func (m *Manager) Reviews() ReviewRepository { return m.reviews }

// Create reserves a slot for a user. The booking insert and the slot claim are
// one transaction; the claim is a conditional update affecting exactly one row,
// so two requests racing on the same slot cannot both succeed.
func (m *Manager) Create(ctx context.Context, userID, serviceID, slotID int64, notes string) (*domain.Booking, error) {
	var created domain.Booking
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc domain.Service
		if err := tx.First(&svc, serviceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(ErrNotFound, "service")
			}
			return errors.Wrap(ErrPersistence, err.Error())
		}

		var slot domain.TimeSlot
		if err := tx.First(&slot, slotID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(ErrNotFound, "time slot")
			}
			return errors.Wrap(ErrPersistence, err.Error())
		}
		if !slot.Usable() {
			return errors.Wrap(ErrConflict, "time slot not available")
		}

		var active int64
		if err := tx.Model(&domain.Booking{}).
			Where("user_id = ? AND time_slot_id = ? AND status IN ?", userID, slotID, domain.ActiveStatuses).
			Count(&active).Error; err != nil {
			return errors.Wrap(ErrPersistence, err.Error())
		}
		if active > 0 {
			return errors.Wrap(ErrConflict, "duplicate active booking")
		}

		created = domain.Booking{
			ID:         common.UUIDint64(),
			UserId:     userID,
			ServiceId:  serviceID,
			TimeSlotId: slotID,
			Status:     domain.BookingPending,
			Notes:      notes,
		}
		if err := tx.Create(&created).Error; err != nil {
			return errors.Wrap(ErrPersistence, err.Error())
		}

		res := tx.Model(&domain.TimeSlot{}).
			Where("id = ? AND available = ? AND blocked = ?", slotID, true, false).
			Update("available", false)
		if res.Error != nil {
			return errors.Wrap(ErrPersistence, res.Error.Error())
		}
		if res.RowsAffected != 1 {
			// lost the race after the initial read
			return errors.Wrap(ErrConflict, "time slot already taken")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("booking created",
		zap.Int64("booking_id", created.ID),
		zap.Int64("user_id", userID),
		zap.Int64("slot_id", slotID))
	m.publish(TopicBookingCreated, &created)
	return &created, nil
}

// Cancel cancels a user's own booking and releases its slot. Cancelling a
// booking that is not pending or confirmed fails cleanly: the conditional
// status update guarantees the slot is never double-freed.
func (m *Manager) Cancel(ctx context.Context, bookingID, requestingUserID int64) (*domain.Booking, error) {
	var cancelled domain.Booking
	var previous domain.BookingStatus
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b domain.Booking
		if err := tx.First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(ErrNotFound, "booking")
			}
			return errors.Wrap(ErrPersistence, err.Error())
		}
		if b.UserId != requestingUserID {
			return errors.Wrap(ErrNotFound, "booking")
		}
		if !b.Status.Active() {
			return errors.Wrap(ErrInvalidState, "booking not cancellable")
		}
		previous = b.Status

		if err := m.cancelLocked(tx, &b); err != nil {
			return err
		}
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("booking cancelled",
		zap.Int64("booking_id", cancelled.ID),
		zap.Int64("user_id", requestingUserID))
	m.publish(TopicBookingStatusChanged, &StatusChange{Booking: &cancelled, Previous: previous})
	return &cancelled, nil
}

// cancelLocked transitions b to cancelled and releases its slot within tx.
// The status update is conditional on the prior active status, so a concurrent
// cancel or sweep replay becomes a no-op instead of a double slot release.
func (m *Manager) cancelLocked(tx *gorm.DB, b *domain.Booking) error {
	res := tx.Model(&domain.Booking{}).
		Where("id = ? AND status IN ?", b.ID, domain.ActiveStatuses).
		Update("status", domain.BookingCancelled)
	if res.Error != nil {
		return errors.Wrap(ErrPersistence, res.Error.Error())
	}
	if res.RowsAffected != 1 {
		return errors.Wrap(ErrInvalidState, "booking not cancellable")
	}
	if err := tx.Model(&domain.TimeSlot{}).
		Where("id = ?", b.TimeSlotId).
		Update("available", true).Error; err != nil {
		return errors.Wrap(ErrPersistence, err.Error())
	}
	b.Status = domain.BookingCancelled
	return nil
}

// UpdateStatus applies a manager-driven status change. The acting operator is
// passed explicitly; ambient session state is never consulted. Slot
// availability is only touched when the resulting status is cancelled.
func (m *Manager) UpdateStatus(ctx context.Context, bookingID int64, newStatus domain.BookingStatus, actor *domain.SysOpr, managerNotes string) (*domain.Booking, error) {
	if !newStatus.Valid() {
		return nil, errors.Wrap(ErrInvalidState, "unknown status")
	}
	if actor == nil || !actor.IsManager() {
		return nil, errors.Wrap(ErrInvalidState, "manager capability required")
	}

	var updated domain.Booking
	var previous domain.BookingStatus
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b domain.Booking
		if err := tx.First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(ErrNotFound, "booking")
			}
			return errors.Wrap(ErrPersistence, err.Error())
		}
		previous = b.Status

		updates := map[string]interface{}{
			"status":        newStatus,
			"manager_id":    actor.ID,
			"manager_notes": managerNotes,
		}

		switch newStatus {
		case domain.BookingCancelled:
			// same slot-release rule as Cancel, applied only while the
			// booking still holds its slot
			if b.Status.Active() {
				if err := m.cancelLocked(tx, &b); err != nil {
					return err
				}
			}
			if err := tx.Model(&domain.Booking{}).Where("id = ?", b.ID).
				Updates(updates).Error; err != nil {
				return errors.Wrap(ErrPersistence, err.Error())
			}
		case domain.BookingPending, domain.BookingConfirmed, domain.BookingCompleted:
			if err := tx.Model(&domain.Booking{}).Where("id = ?", b.ID).
				Updates(updates).Error; err != nil {
				return errors.Wrap(ErrPersistence, err.Error())
			}
		}

		if err := tx.First(&updated, b.ID).Error; err != nil {
			return errors.Wrap(ErrPersistence, err.Error())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("booking status updated",
		zap.Int64("booking_id", updated.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(updated.Status)),
		zap.Int64("manager_id", actor.ID))
	m.publish(TopicBookingStatusChanged, &StatusChange{Booking: &updated, Previous: previous})
	return &updated, nil
}

// SweepResult reports how many bookings each maintenance pass transitioned.
type SweepResult struct {
	Expired   int `json:"expired"`
	Completed int `json:"completed"`
}

// Sweep runs the two maintenance passes: cancel stale pending bookings and
// complete past confirmed ones. Each booking's transition is its own
// transaction with the precondition re-checked inside, so overlapping sweep
// invocations are safe and an immediate second run reports zeros.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	cutoff := time.Now().Add(-m.pendingTTL())
	ids, err := m.bookings.ListExpiredPending(ctx, cutoff)
	if err != nil {
		return result, errors.Wrap(ErrPersistence, err.Error())
	}

	if len(ids) > 0 {
		var expired int64
		var wg sync.WaitGroup
		pool, perr := ants.NewPoolWithFunc(m.sweepWorkers, func(i interface{}) {
			defer wg.Done()
			id := i.(int64)
			done, err := m.expireOne(ctx, id)
			if err != nil {
				zap.L().Error("sweep: expire failed",
					zap.Int64("booking_id", id), zap.Error(err))
				return
			}
			if done {
				atomic.AddInt64(&expired, 1)
			}
		})
		if perr != nil {
			return result, errors.Wrap(ErrPersistence, perr.Error())
		}
		for _, id := range ids {
			wg.Add(1)
			if err := pool.Invoke(id); err != nil {
				wg.Done()
				zap.L().Error("sweep: submit failed", zap.Int64("booking_id", id), zap.Error(err))
			}
		}
		wg.Wait()
		pool.Release()
		result.Expired = int(expired)
	}

	pastIDs, err := m.bookings.ListPastConfirmed(ctx, time.Now())
	if err != nil {
		return result, errors.Wrap(ErrPersistence, err.Error())
	}
	for _, id := range pastIDs {
		done, err := m.completeOne(ctx, id)
		if err != nil {
			zap.L().Error("sweep: complete failed",
				zap.Int64("booking_id", id), zap.Error(err))
			continue
		}
		if done {
			result.Completed++
		}
	}

	if result.Expired > 0 || result.Completed > 0 {
		zap.L().Info("booking sweep finished",
			zap.Int("expired", result.Expired),
			zap.Int("completed", result.Completed))
	}
	return result, nil
}

// expireOne cancels a stale pending booking and frees its slot. The status
// recheck inside the transaction makes replays no-ops.
func (m *Manager) expireOne(ctx context.Context, id int64) (bool, error) {
	done := false
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b domain.Booking
		if err := tx.First(&b, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if b.Status != domain.BookingPending {
			return nil
		}
		res := tx.Model(&domain.Booking{}).
			Where("id = ? AND status = ?", id, domain.BookingPending).
			Update("status", domain.BookingCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		if err := tx.Model(&domain.TimeSlot{}).
			Where("id = ?", b.TimeSlotId).
			Update("available", true).Error; err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

// completeOne marks a past confirmed booking completed. The slot is left
// unavailable; a past slot is never re-offered.
func (m *Manager) completeOne(ctx context.Context, id int64) (bool, error) {
	res := m.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ? AND status = ?", id, domain.BookingConfirmed).
		Update("status", domain.BookingCompleted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// BlockSlots blocks every slot whose date falls in [from, to] and whose time
// band lies within [startTime, endTime] (HH:MM). Each slot's update is isolated
// so one failure does not abort the rest. Returns the count changed.
func (m *Manager) BlockSlots(ctx context.Context, from, to time.Time, startTime, endTime, reason string) (int, error) {
	ids, err := m.slots.ListRange(ctx, from, to, startTime, endTime)
	if err != nil {
		return 0, errors.Wrap(ErrPersistence, err.Error())
	}

	now := time.Now()
	blocked := 0
	for _, id := range ids {
		res := m.db.WithContext(ctx).Model(&domain.TimeSlot{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"blocked":      true,
				"available":    false,
				"block_reason": reason,
				"blocked_at":   now,
			})
		if res.Error != nil {
			zap.L().Error("block slot failed", zap.Int64("slot_id", id), zap.Error(res.Error))
			continue
		}
		blocked += int(res.RowsAffected)
	}

	zap.L().Info("slots blocked",
		zap.Int("count", blocked), zap.String("reason", reason))
	if blocked > 0 {
		m.publish(TopicSlotsBlocked, &BlockNotice{Count: blocked, Reason: reason})
	}
	return blocked, nil
}

// UnblockSlots clears the block on the given slots. Only slots currently
// blocked are touched; unknown IDs are skipped silently. Returns the count
// actually changed.
func (m *Manager) UnblockSlots(ctx context.Context, slotIDs []int64) (int, error) {
	unblocked := 0
	for _, id := range slotIDs {
		res := m.db.WithContext(ctx).Model(&domain.TimeSlot{}).
			Where("id = ? AND blocked = ?", id, true).
			Updates(map[string]interface{}{
				"blocked":      false,
				"available":    true,
				"block_reason": "",
				"blocked_at":   nil,
			})
		if res.Error != nil {
			zap.L().Error("unblock slot failed", zap.Int64("slot_id", id), zap.Error(res.Error))
			continue
		}
		unblocked += int(res.RowsAffected)
	}

	zap.L().Info("slots unblocked", zap.Int("count", unblocked))
	return unblocked, nil
}

// CreateReview records a rating for the user's own completed booking.
// At most one review per booking.
func (m *Manager) CreateReview(ctx context.Context, bookingID, userID int64, rating int, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, errors.Wrap(ErrInvalidState, "rating must be 1-5")
	}

	var review domain.Review
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b domain.Booking
		if err := tx.First(&b, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errors.Wrap(ErrNotFound, "booking")
			}
			return errors.Wrap(ErrPersistence, err.Error())
		}
		if b.UserId != userID {
			return errors.Wrap(ErrNotFound, "booking")
		}
		if b.Status != domain.BookingCompleted {
			return errors.Wrap(ErrInvalidState, "review requires a completed booking")
		}

		var existing int64
		if err := tx.Model(&domain.Review{}).
			Where("booking_id = ?", bookingID).Count(&existing).Error; err != nil {
			return errors.Wrap(ErrPersistence, err.Error())
		}
		if existing > 0 {
			return errors.Wrap(ErrInvalidState, "booking already reviewed")
		}

		review = domain.Review{
			ID:        common.UUIDint64(),
			BookingId: bookingID,
			Rating:    rating,
			Comment:   comment,
		}
		if err := tx.Create(&review).Error; err != nil {
			return errors.Wrap(ErrPersistence, err.Error())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("review created",
		zap.Int64("booking_id", bookingID), zap.Int("rating", rating))
	return &review, nil
}
