package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/roomboard/server/internal/board"
	"github.com/roomboard/server/internal/errs"
)

// boardFor returns the authenticated user's board, or nil after
// writing a 401.
func (h *Handler) boardFor(w http.ResponseWriter, r *http.Request) *board.Store {
	rec, ok := h.requireSession(w, r)
	if !ok {
		return nil
	}
	return h.boards.ForSubject(rec.Claims.Sub())
}

// parseSlot reads the {slot} path value, or writes a 400.
func parseSlot(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil || slot < 1 || slot > board.NumSlots {
		writeCodedError(w, errs.New(errs.InvalidArgument, "slot must be 1, 2 or 3"))
		return 0, false
	}
	return slot, true
}

// ListPeople handles GET /people - the three configured slots.
func (h *Handler) ListPeople(w http.ResponseWriter, r *http.Request) {
	store := h.boardFor(w, r)
	if store == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"people": store.People()})
}

// PutPerson handles PUT /people/{slot} - overwrites one slot. The
// frontend's config form historically sent "firstname" for the name
// field, so both keys are accepted.
func (h *Handler) PutPerson(w http.ResponseWriter, r *http.Request) {
	store := h.boardFor(w, r)
	if store == nil {
		return
	}
	slot, ok := parseSlot(w, r)
	if !ok {
		return
	}

	var body struct {
		Name      string `json:"name"`
		Firstname string `json:"firstname"`
		Role      string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeCodedError(w, errs.Wrap(errs.InvalidArgument, "Invalid JSON: "+err.Error(), err))
		return
	}

	name := strings.TrimSpace(body.Name)
	if name == "" {
		name = strings.TrimSpace(body.Firstname)
	}
	store.SetSlot(slot, board.Person{Name: name, Role: strings.TrimSpace(body.Role)})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "people": store.People()})
}

// DeletePerson handles DELETE /people/{slot} - clears one slot.
func (h *Handler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	store := h.boardFor(w, r)
	if store == nil {
		return
	}
	slot, ok := parseSlot(w, r)
	if !ok {
		return
	}

	store.ClearSlot(slot)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "people": store.People()})
}

// ListEvents handles GET /events - the full date-to-statuses mapping.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	store := h.boardFor(w, r)
	if store == nil {
		return
	}
	writeJSON(w, http.StatusOK, store.Events())
}

type eventRequest struct {
	Date   string `json:"date"`
	Status string `json:"status"`
}

func decodeEventRequest(w http.ResponseWriter, r *http.Request) (eventRequest, bool) {
	var body eventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeCodedError(w, errs.Wrap(errs.InvalidArgument, "Invalid JSON: "+err.Error(), err))
		return eventRequest{}, false
	}
	if body.Date == "" || body.Status == "" {
		writeCodedError(w, errs.New(errs.InvalidArgument, "date and status are required"))
		return eventRequest{}, false
	}
	return body, true
}

// AddEvent handles POST /events - idempotent status add.
func (h *Handler) AddEvent(w http.ResponseWriter, r *http.Request) {
	store := h.boardFor(w, r)
	if store == nil {
		return
	}
	body, ok := decodeEventRequest(w, r)
	if !ok {
		return
	}

	store.AddEvent(body.Date, body.Status)
	writeJSON(w, http.StatusOK, store.Events())
}

// RemoveEvent handles DELETE /events - removes one status occurrence.
func (h *Handler) RemoveEvent(w http.ResponseWriter, r *http.Request) {
	store := h.boardFor(w, r)
	if store == nil {
		return
	}
	body, ok := decodeEventRequest(w, r)
	if !ok {
		return
	}

	store.RemoveEvent(body.Date, body.Status)
	writeJSON(w, http.StatusOK, store.Events())
}
