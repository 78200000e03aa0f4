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

// GuestHandler handles guest profile CRUD through the dual-write coordinator.
type GuestHandler struct {
	repo     *db.Repository
	coord    *sync.Coordinator
	validate *validator.Validate
}

// NewGuestHandler creates a new GuestHandler.
func NewGuestHandler(repo *db.Repository, coord *sync.Coordinator) *GuestHandler {
	return &GuestHandler{
		repo:     repo,
		coord:    coord,
		validate: validator.New(),
	}
}

type guestRequest struct {
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
}

// Create handles POST /api/guests
func (h *GuestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	guest := &models.Guest{
		ID:       models.UUID(uuid.New()),
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
	}

	id, err := h.coord.ExecuteWrite(r.Context(), models.EntityTypeGuest, guest.TableName(),
		models.OperationInsert,
		func(tx *sql.Tx) (string, error) {
			return string(guest.ID), h.repo.InsertGuestTx(tx, guest)
		}, nil)
	if err != nil {
		http.Error(w, "Failed to create guest", http.StatusInternalServerError)
		return
	}

	h.writeGuest(w, http.StatusCreated, id)
}

// Update handles PUT /api/guests/{id}
func (h *GuestHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var req guestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := h.repo.GetGuest(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Guest not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load guest", http.StatusInternalServerError)
		return
	}

	existing.FullName = req.FullName
	existing.Email = req.Email
	existing.Phone = req.Phone

	_, err = h.coord.ExecuteWrite(r.Context(), models.EntityTypeGuest, existing.TableName(),
		models.OperationUpdate,
		func(tx *sql.Tx) (string, error) {
			return id, h.repo.UpdateGuestTx(tx, existing)
		}, nil)
	if err != nil {
		http.Error(w, "Failed to update guest", http.StatusInternalServerError)
		return
	}

	h.writeGuest(w, http.StatusOK, id)
}

// Route dispatches /api/guests and /api/guests/{id} by method.
func (h *GuestHandler) Route(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/guests")
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
		http.Error(w, "Invalid guest ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.writeGuest(w, http.StatusOK, rest)
	case http.MethodPut:
		h.Update(w, r, rest)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *GuestHandler) writeGuest(w http.ResponseWriter, status int, id string) {
	guest, err := h.repo.GetGuest(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "Guest not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load guest", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(guest)
}
