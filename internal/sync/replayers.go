package sync

import (
	"context"
	"database/sql"
	"errors"

	"github.com/atriumlabs/stayops/backend/internal/db"
	apperrors "github.com/atriumlabs/stayops/backend/internal/errors"
	"github.com/atriumlabs/stayops/backend/internal/models"
	"github.com/atriumlabs/stayops/backend/internal/remote"
)

// RegisterDefaults registers a replayer for every synced domain collection.
func RegisterDefaults(reg *Registry, repo *db.Repository) error {
	replayers := []Replayer{
		&guestReplayer{repo: repo},
		&roomReplayer{repo: repo},
		&bookingReplayer{repo: repo},
		&paymentReplayer{repo: repo},
		&messageReplayer{repo: repo},
		&loyaltyReplayer{repo: repo},
	}
	for _, rep := range replayers {
		if err := reg.Register(rep); err != nil {
			return err
		}
	}
	return nil
}

// vanished reports whether a local read failed because the row is gone.
// A row deleted locally after being queued converges as a remote delete
// rather than a silent no-op, so a missed local delete still propagates.
func vanished(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// =====================================================
// Guest
// =====================================================

type guestReplayer struct {
	repo *db.Repository
}

func (r *guestReplayer) EntityType() string { return models.EntityTypeGuest }
func (r *guestReplayer) Collection() string { return models.Guest{}.TableName() }

func (r *guestReplayer) Replay(ctx context.Context, tx remote.Tx, entityID string) error {
	g, err := r.repo.GetGuest(entityID)
	if vanished(err) {
		return r.Delete(ctx, tx, entityID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to read guest", err)
	}

	return tx.Upsert(ctx, r.Collection(), entityID, map[string]interface{}{
		"full_name":     g.FullName,
		"email":         g.Email,
		"phone":         g.Phone,
		"last_modified": g.LastModified,
		"created_at":    g.CreatedAt,
	})
}

func (r *guestReplayer) Delete(ctx context.Context, tx remote.Tx, entityID string) error {
	return tx.Delete(ctx, r.Collection(), entityID)
}

// =====================================================
// Room
// =====================================================

type roomReplayer struct {
	repo *db.Repository
}

func (r *roomReplayer) EntityType() string { return models.EntityTypeRoom }
func (r *roomReplayer) Collection() string { return models.Room{}.TableName() }

func (r *roomReplayer) Replay(ctx context.Context, tx remote.Tx, entityID string) error {
	room, err := r.repo.GetRoom(entityID)
	if vanished(err) {
		return r.Delete(ctx, tx, entityID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to read room", err)
	}

	return tx.Upsert(ctx, r.Collection(), entityID, map[string]interface{}{
		"number":        room.Number,
		"floor":         room.Floor,
		"type":          room.Type,
		"status":        room.Status,
		"last_modified": room.LastModified,
		"created_at":    room.CreatedAt,
	})
}

func (r *roomReplayer) Delete(ctx context.Context, tx remote.Tx, entityID string) error {
	return tx.Delete(ctx, r.Collection(), entityID)
}

// =====================================================
// Booking (with booking_rooms children)
// =====================================================

type bookingReplayer struct {
	repo *db.Repository
}

func (r *bookingReplayer) EntityType() string { return models.EntityTypeBooking }
func (r *bookingReplayer) Collection() string { return models.Booking{}.TableName() }

// Replay upserts the booking and rewrites its room associations as
// delete-all-then-reinsert under the booking's key. Parent and children share
// one remote transaction, so a partial failure rolls back the whole unit.
func (r *bookingReplayer) Replay(ctx context.Context, tx remote.Tx, entityID string) error {
	b, err := r.repo.GetBooking(entityID)
	if vanished(err) {
		return r.Delete(ctx, tx, entityID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to read booking", err)
	}

	err = tx.Upsert(ctx, r.Collection(), entityID, map[string]interface{}{
		"guest_id":      string(b.GuestID),
		"check_in":      b.CheckIn,
		"check_out":     b.CheckOut,
		"status":        b.Status,
		"total_amount":  b.TotalAmount,
		"notes":         b.Notes,
		"last_modified": b.LastModified,
		"created_at":    b.CreatedAt,
	})
	if err != nil {
		return err
	}

	assocs, err := r.repo.ListBookingRooms(entityID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to read booking rooms", err)
	}

	if err := tx.DeleteWhere(ctx, models.BookingRoom{}.TableName(), "booking_id", entityID); err != nil {
		return err
	}
	for i := range assocs {
		a := &assocs[i]
		err := tx.Upsert(ctx, models.BookingRoom{}.TableName(), string(a.ID), map[string]interface{}{
			"booking_id":   string(a.BookingID),
			"room_id":      string(a.RoomID),
			"nightly_rate": a.NightlyRate,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *bookingReplayer) Delete(ctx context.Context, tx remote.Tx, entityID string) error {
	if err := tx.DeleteWhere(ctx, models.BookingRoom{}.TableName(), "booking_id", entityID); err != nil {
		return err
	}
	return tx.Delete(ctx, r.Collection(), entityID)
}

// =====================================================
// Payment
// =====================================================

type paymentReplayer struct {
	repo *db.Repository
}

func (r *paymentReplayer) EntityType() string { return models.EntityTypePayment }
func (r *paymentReplayer) Collection() string { return models.Payment{}.TableName() }

func (r *paymentReplayer) Replay(ctx context.Context, tx remote.Tx, entityID string) error {
	p, err := r.repo.GetPayment(entityID)
	if vanished(err) {
		return r.Delete(ctx, tx, entityID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to read payment", err)
	}

	return tx.Upsert(ctx, r.Collection(), entityID, map[string]interface{}{
		"booking_id":    string(p.BookingID),
		"amount":        p.Amount,
		"currency":      p.Currency,
		"method":        p.Method,
		"status":        p.Status,
		"reference":     p.Reference,
		"last_modified": p.LastModified,
		"created_at":    p.CreatedAt,
	})
}

func (r *paymentReplayer) Delete(ctx context.Context, tx remote.Tx, entityID string) error {
	return tx.Delete(ctx, r.Collection(), entityID)
}

// =====================================================
// Message
// =====================================================

type messageReplayer struct {
	repo *db.Repository
}

func (r *messageReplayer) EntityType() string { return models.EntityTypeMessage }
func (r *messageReplayer) Collection() string { return models.Message{}.TableName() }

func (r *messageReplayer) Replay(ctx context.Context, tx remote.Tx, entityID string) error {
	m, err := r.repo.GetMessage(entityID)
	if vanished(err) {
		return r.Delete(ctx, tx, entityID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to read message", err)
	}

	return tx.Upsert(ctx, r.Collection(), entityID, map[string]interface{}{
		"guest_id":      string(m.GuestID),
		"channel":       m.Channel,
		"direction":     m.Direction,
		"body":          m.Body,
		"sent_at":       m.SentAt,
		"last_modified": m.LastModified,
		"created_at":    m.CreatedAt,
	})
}

func (r *messageReplayer) Delete(ctx context.Context, tx remote.Tx, entityID string) error {
	return tx.Delete(ctx, r.Collection(), entityID)
}

// =====================================================
// Loyalty account
// =====================================================

type loyaltyReplayer struct {
	repo *db.Repository
}

func (r *loyaltyReplayer) EntityType() string { return models.EntityTypeLoyaltyAccount }
func (r *loyaltyReplayer) Collection() string { return models.LoyaltyAccount{}.TableName() }

func (r *loyaltyReplayer) Replay(ctx context.Context, tx remote.Tx, entityID string) error {
	a, err := r.repo.GetLoyaltyAccount(entityID)
	if vanished(err) {
		return r.Delete(ctx, tx, entityID)
	}
	if err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to read loyalty account", err)
	}

	return tx.Upsert(ctx, r.Collection(), entityID, map[string]interface{}{
		"guest_id":      string(a.GuestID),
		"tier":          a.Tier,
		"points":        a.Points,
		"last_modified": a.LastModified,
		"created_at":    a.CreatedAt,
	})
}

func (r *loyaltyReplayer) Delete(ctx context.Context, tx remote.Tx, entityID string) error {
	return tx.Delete(ctx, r.Collection(), entityID)
}
