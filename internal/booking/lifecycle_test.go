package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/salonbook/salonbook/internal/booking"
	"github.com/salonbook/salonbook/internal/domain"
	"github.com/salonbook/salonbook/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a second pool connection would see an empty in-memory database
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	return db
}

func newTestManager(t *testing.T) (*booking.Manager, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	m := booking.NewManager(db, EventBus.New(), booking.WithSweepWorkers(1))
	return m, db
}

func seedService(t *testing.T, db *gorm.DB) *domain.Service {
	t.Helper()
	svc := &domain.Service{
		ID:       common.UUIDint64(),
		Name:     "Haircut",
		Price:    35,
		Duration: 30,
	}
	require.NoError(t, db.Create(svc).Error)
	return svc
}

func seedSlot(t *testing.T, db *gorm.DB, serviceID int64, date time.Time, start, end string) *domain.TimeSlot {
	t.Helper()
	slot := &domain.TimeSlot{
		ID:        common.UUIDint64(),
		ServiceId: serviceID,
		Date:      booking.Midnight(date),
		StartTime: start,
		EndTime:   end,
		Available: true,
	}
	require.NoError(t, db.Create(slot).Error)
	return slot
}

func reloadSlot(t *testing.T, db *gorm.DB, id int64) *domain.TimeSlot {
	t.Helper()
	var slot domain.TimeSlot
	require.NoError(t, db.First(&slot, id).Error)
	return &slot
}

func reloadBooking(t *testing.T, db *gorm.DB, id int64) *domain.Booking {
	t.Helper()
	var b domain.Booking
	require.NoError(t, db.First(&b, id).Error)
	return &b
}

func manager() *domain.SysOpr {
	return &domain.SysOpr{ID: common.UUIDint64(), Username: "boss", Level: domain.LevelManager}
}

func TestCreateBookingClaimsSlot(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "first visit")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPending, b.Status)
	assert.Equal(t, "first visit", b.Notes)

	assert.False(t, reloadSlot(t, db, slot.ID).Available)
}

func TestCreateBookingSlotTaken(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	_, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	_, err = m.Create(context.Background(), 200, svc.ID, slot.ID, "")
	assert.True(t, booking.IsConflict(err))

	var count int64
	db.Model(&domain.Booking{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestCreateBookingBlockedSlot(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")
	require.NoError(t, db.Model(slot).Updates(map[string]interface{}{"blocked": true, "available": false}).Error)

	_, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	assert.True(t, booking.IsConflict(err))
}

func TestCreateBookingUnknownRefs(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	_, err := m.Create(context.Background(), 100, 424242, slot.ID, "")
	assert.True(t, booking.IsNotFound(err))

	_, err = m.Create(context.Background(), 100, svc.ID, 424242, "")
	assert.True(t, booking.IsNotFound(err))
}

func TestCreateBookingDuplicateActive(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	_, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	// even if the slot is re-opened by hand, the same user cannot hold it twice
	require.NoError(t, db.Model(&domain.TimeSlot{}).Where("id = ?", slot.ID).
		Update("available", true).Error)

	_, err = m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	assert.True(t, booking.IsConflict(err))
	assert.Contains(t, err.Error(), "duplicate")
}

func TestCancelReleasesSlot(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	cancelled, err := m.Cancel(context.Background(), b.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, cancelled.Status)
	assert.True(t, reloadSlot(t, db, slot.ID).Available)
}

func TestCancelNotOwner(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	_, err = m.Cancel(context.Background(), b.ID, 200)
	assert.True(t, booking.IsNotFound(err))

	assert.Equal(t, domain.BookingPending, reloadBooking(t, db, b.ID).Status)
	assert.False(t, reloadSlot(t, db, slot.ID).Available)
}

func TestCancelTwice(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	_, err = m.Cancel(context.Background(), b.ID, 100)
	require.NoError(t, err)

	_, err = m.Cancel(context.Background(), b.ID, 100)
	assert.True(t, booking.IsInvalidState(err))
	assert.True(t, reloadSlot(t, db, slot.ID).Available)
}

func TestUpdateStatusRequiresManager(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")
	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	_, err = m.UpdateStatus(context.Background(), b.ID, domain.BookingConfirmed, nil, "")
	assert.True(t, booking.IsInvalidState(err))

	customer := &domain.SysOpr{ID: 100, Level: domain.LevelUser}
	_, err = m.UpdateStatus(context.Background(), b.ID, domain.BookingConfirmed, customer, "")
	assert.True(t, booking.IsInvalidState(err))

	assert.Equal(t, domain.BookingPending, reloadBooking(t, db, b.ID).Status)
}

func TestUpdateStatusConfirmKeepsSlot(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")
	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	mgr := manager()
	updated, err := m.UpdateStatus(context.Background(), b.ID, domain.BookingConfirmed, mgr, "see you then")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, updated.Status)
	assert.Equal(t, mgr.ID, updated.ManagerId)
	assert.Equal(t, "see you then", updated.ManagerNotes)
	assert.False(t, reloadSlot(t, db, slot.ID).Available)
}

func TestUpdateStatusCancelReleasesSlot(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")
	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	mgr := manager()
	_, err = m.UpdateStatus(context.Background(), b.ID, domain.BookingConfirmed, mgr, "")
	require.NoError(t, err)

	updated, err := m.UpdateStatus(context.Background(), b.ID, domain.BookingCancelled, mgr, "no show")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, updated.Status)
	assert.True(t, reloadSlot(t, db, slot.ID).Available)
}

func TestUpdateStatusCancelCompletedKeepsSlot(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")
	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	mgr := manager()
	_, err = m.UpdateStatus(context.Background(), b.ID, domain.BookingCompleted, mgr, "")
	require.NoError(t, err)

	// cancelling after completion must not free the slot again
	updated, err := m.UpdateStatus(context.Background(), b.ID, domain.BookingCancelled, mgr, "record fix")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, updated.Status)
	assert.False(t, reloadSlot(t, db, slot.ID).Available)
}

func TestSweepExpiresStalePending(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	staleSlot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")
	freshSlot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "11:00", "11:30")

	stale, err := m.Create(context.Background(), 100, svc.ID, staleSlot.ID, "")
	require.NoError(t, err)
	fresh, err := m.Create(context.Background(), 200, svc.ID, freshSlot.ID, "")
	require.NoError(t, err)

	require.NoError(t, db.Model(&domain.Booking{}).Where("id = ?", stale.ID).
		Update("created_at", time.Now().Add(-61*time.Minute)).Error)
	require.NoError(t, db.Model(&domain.Booking{}).Where("id = ?", fresh.ID).
		Update("created_at", time.Now().Add(-59*time.Minute)).Error)

	result, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
	assert.Equal(t, 0, result.Completed)

	assert.Equal(t, domain.BookingCancelled, reloadBooking(t, db, stale.ID).Status)
	assert.True(t, reloadSlot(t, db, staleSlot.ID).Available)

	assert.Equal(t, domain.BookingPending, reloadBooking(t, db, fresh.ID).Status)
	assert.False(t, reloadSlot(t, db, freshSlot.ID).Available)
}

func TestSweepCompletesPastConfirmed(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)
	_, err = m.UpdateStatus(context.Background(), b.ID, domain.BookingConfirmed, manager(), "")
	require.NoError(t, err)

	yesterday := booking.Midnight(time.Now().AddDate(0, 0, -1))
	require.NoError(t, db.Model(&domain.TimeSlot{}).Where("id = ?", slot.ID).
		Update("date", yesterday).Error)

	result, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Expired)
	assert.Equal(t, 1, result.Completed)

	assert.Equal(t, domain.BookingCompleted, reloadBooking(t, db, b.ID).Status)
	// a past slot stays off the market
	assert.False(t, reloadSlot(t, db, slot.ID).Available)
}

func TestSweepIdempotent(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.Booking{}).Where("id = ?", b.ID).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	first, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Expired)

	second, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, booking.SweepResult{}, second)
}

func TestSweepHonorsCustomTTL(t *testing.T) {
	db := newTestDB(t)
	m := booking.NewManager(db, nil,
		booking.WithSweepWorkers(1),
		booking.WithPendingTTL(10*time.Minute))
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)
	require.NoError(t, db.Model(&domain.Booking{}).Where("id = ?", b.ID).
		Update("created_at", time.Now().Add(-11*time.Minute)).Error)

	result, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Expired)
}

func TestBlockAndUnblockSlots(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	day1 := time.Now().AddDate(0, 0, 1)
	day2 := time.Now().AddDate(0, 0, 2)
	morning := seedSlot(t, db, svc.ID, day1, "09:00", "09:30")
	noon := seedSlot(t, db, svc.ID, day1, "12:00", "12:30")
	nextDay := seedSlot(t, db, svc.ID, day2, "09:00", "09:30")

	blocked, err := m.BlockSlots(context.Background(), day1, day2, "00:00", "10:00", "renovation")
	require.NoError(t, err)
	assert.Equal(t, 2, blocked)

	for _, id := range []int64{morning.ID, nextDay.ID} {
		slot := reloadSlot(t, db, id)
		assert.True(t, slot.Blocked)
		assert.False(t, slot.Available)
		assert.Equal(t, "renovation", slot.BlockReason)
		assert.NotNil(t, slot.BlockedAt)
	}
	assert.False(t, reloadSlot(t, db, noon.ID).Blocked)

	unblocked, err := m.UnblockSlots(context.Background(),
		[]int64{morning.ID, nextDay.ID, noon.ID, 424242})
	require.NoError(t, err)
	assert.Equal(t, 2, unblocked)

	slot := reloadSlot(t, db, morning.ID)
	assert.False(t, slot.Blocked)
	assert.True(t, slot.Available)
	assert.Empty(t, slot.BlockReason)
	assert.Nil(t, slot.BlockedAt)
}

func TestCreateReview(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	slot := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 1), "10:00", "10:30")

	b, err := m.Create(context.Background(), 100, svc.ID, slot.ID, "")
	require.NoError(t, err)

	// not completed yet
	_, err = m.CreateReview(context.Background(), b.ID, 100, 5, "great")
	assert.True(t, booking.IsInvalidState(err))

	_, err = m.UpdateStatus(context.Background(), b.ID, domain.BookingCompleted, manager(), "")
	require.NoError(t, err)

	_, err = m.CreateReview(context.Background(), b.ID, 100, 6, "")
	assert.True(t, booking.IsInvalidState(err))

	_, err = m.CreateReview(context.Background(), b.ID, 200, 5, "not mine")
	assert.True(t, booking.IsNotFound(err))

	review, err := m.CreateReview(context.Background(), b.ID, 100, 5, "great cut")
	require.NoError(t, err)
	assert.Equal(t, b.ID, review.BookingId)

	_, err = m.CreateReview(context.Background(), b.ID, 100, 4, "again")
	assert.True(t, booking.IsInvalidState(err))

	ratings, err := m.Reviews().ServiceRatings(context.Background(), svc.ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{5}, ratings)
}

func TestRepositoryListings(t *testing.T) {
	m, db := newTestManager(t)
	svc := seedService(t, db)
	future := seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, 3), "10:00", "10:30")
	seedSlot(t, db, svc.ID, time.Now().AddDate(0, 0, -3), "10:00", "10:30")

	usable, err := m.Slots().ListUsable(context.Background(), svc.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, usable, 1)
	assert.Equal(t, future.ID, usable[0].ID)

	_, err = m.BlockSlots(context.Background(),
		time.Now().AddDate(0, 0, 3), time.Now().AddDate(0, 0, 3), "00:00", "23:59", "holiday")
	require.NoError(t, err)

	blockedSlots, err := m.Slots().ListBlocked(context.Background(), time.Now())
	require.NoError(t, err)
	require.Len(t, blockedSlots, 1)
	assert.Equal(t, future.ID, blockedSlots[0].ID)

	slot, err := m.Slots().GetByID(context.Background(), future.ID)
	require.NoError(t, err)
	assert.True(t, slot.Blocked)
	assert.False(t, slot.Usable())

	b, err := m.Create(context.Background(), 100, svc.ID, future.ID, "")
	assert.True(t, booking.IsConflict(err))
	assert.Nil(t, b)
}
