package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/atriumlabs/stayops/backend/internal/db"
	"github.com/atriumlabs/stayops/backend/internal/models"
	"github.com/atriumlabs/stayops/backend/internal/sync"
	"github.com/atriumlabs/stayops/backend/internal/uuid"
)

// BookingHandler handles booking CRUD. Every mutation goes through the
// dual-write coordinator: the local write is authoritative, the remote mirror
// is opportunistic.
type BookingHandler struct {
	repo     *db.Repository
	coord    *sync.Coordinator
	validate *validator.Validate
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(repo *db.Repository, coord *sync.Coordinator) *BookingHandler {
	return &BookingHandler{
		repo:     repo,
		coord:    coord,
		validate: validator.New(),
	}
}

type bookingRoomRequest struct {
	RoomID      string `json:"room_id" validate:"required,uuid4"`
	NightlyRate int64  `json:"nightly_rate" validate:"gte=0"`
}

type bookingRequest struct {
	GuestID     string               `json:"guest_id" validate:"required,uuid4"`
	CheckIn     int64                `json:"check_in" validate:"required,gt=0"`
	CheckOut    int64                `json:"check_out" validate:"required,gtfield=CheckIn"`
	Status      string               `json:"status" validate:"omitempty,oneof=reserved checked_in checked_out cancelled"`
	TotalAmount int64                `json:"total_amount" validate:"gte=0"`
	Notes       string               `json:"notes"`
	Rooms       []bookingRoomRequest `json:"rooms" validate:"required,min=1,dive"`
}

// Create handles POST /api/bookings
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	booking := &models.Booking{
		ID:          models.UUID(uuid.New()),
		GuestID:     models.UUID(req.GuestID),
		CheckIn:     req.CheckIn,
		CheckOut:    req.CheckOut,
		Status:      req.Status,
		TotalAmount: req.TotalAmount,
		Notes:       req.Notes,
	}
	rooms := assocRooms(string(booking.ID), req.Rooms)

	id, err := h.coord.ExecuteWrite(r.Context(), models.EntityTypeBooking, booking.TableName(),
		models.OperationInsert,
		func(tx *sql.Tx) (string, error) {
			if err := h.repo.InsertBookingTx(tx, booking); err != nil {
				return "", err
			}
			if err := h.repo.ReplaceBookingRoomsTx(tx, string(booking.ID), rooms); err != nil {
				return "", err
			}
			return string(booking.ID), nil
		}, nil)
	if err != nil {
		http.Error(w, "Failed to create booking", http.StatusInternalServerError)
		return
	}

	h.writeBooking(w, http.StatusCreated, id)
}

// Get handles GET /api/bookings/{id}
func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	h.writeBooking(w, http.StatusOK, id)
}

// Update handles PUT /api/bookings/{id}
func (h *BookingHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := h.repo.GetBooking(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load booking", http.StatusInternalServerError)
		return
	}

	existing.GuestID = models.UUID(req.GuestID)
	existing.CheckIn = req.CheckIn
	existing.CheckOut = req.CheckOut
	if req.Status != "" {
		existing.Status = req.Status
	}
	existing.TotalAmount = req.TotalAmount
	existing.Notes = req.Notes
	rooms := assocRooms(id, req.Rooms)

	_, err = h.coord.ExecuteWrite(r.Context(), models.EntityTypeBooking, existing.TableName(),
		models.OperationUpdate,
		func(tx *sql.Tx) (string, error) {
			if err := h.repo.UpdateBookingTx(tx, existing); err != nil {
				return "", err
			}
			if err := h.repo.ReplaceBookingRoomsTx(tx, id, rooms); err != nil {
				return "", err
			}
			return id, nil
		}, nil)
	if err != nil {
		http.Error(w, "Failed to update booking", http.StatusInternalServerError)
		return
	}

	h.writeBooking(w, http.StatusOK, id)
}

// Delete handles DELETE /api/bookings/{id}
func (h *BookingHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.repo.GetBooking(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load booking", http.StatusInternalServerError)
		return
	}

	_, err := h.coord.ExecuteWrite(r.Context(), models.EntityTypeBooking, models.Booking{}.TableName(),
		models.OperationDelete,
		func(tx *sql.Tx) (string, error) {
			return id, h.repo.DeleteBookingTx(tx, id)
		}, nil)
	if err != nil {
		http.Error(w, "Failed to delete booking", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Route dispatches /api/bookings and /api/bookings/{id} by method.
func (h *BookingHandler) Route(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/bookings")
	rest = strings.Trim(rest, "/")

	if rest == "" {
		if r.Method == http.MethodPost {
			h.Create(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !uuid.IsValid(rest) {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.Get(w, r, rest)
	case http.MethodPut:
		h.Update(w, r, rest)
	case http.MethodDelete:
		h.Delete(w, r, rest)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BookingHandler) writeBooking(w http.ResponseWriter, status int, id string) {
	booking, err := h.repo.GetBooking(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load booking", http.StatusInternalServerError)
		return
	}
	rooms, err := h.repo.ListBookingRooms(id)
	if err != nil {
		http.Error(w, "Failed to load booking rooms", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"booking": booking,
		"rooms":   rooms,
	})
}

func assocRooms(bookingID string, reqs []bookingRoomRequest) []models.BookingRoom {
	rooms := make([]models.BookingRoom, 0, len(reqs))
	for _, rr := range reqs {
		rooms = append(rooms, models.BookingRoom{
			ID:          models.UUID(uuid.New()),
			BookingID:   models.UUID(bookingID),
			RoomID:      models.UUID(rr.RoomID),
			NightlyRate: rr.NightlyRate,
		})
	}
	return rooms
}
