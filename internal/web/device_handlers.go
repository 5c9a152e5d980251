package web

import (
	"net/http"
	"time"

	"github.com/roomboard/server/internal/device"
	"github.com/roomboard/server/internal/errs"
	"github.com/roomboard/server/internal/obs"
)

// DeviceSnapshot handles GET /device/snapshot - the machine-facing
// conditional GET. Authentication runs before any board state is read.
func (h *Handler) DeviceSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Authenticate(r.Header.Get("Authorization")) {
		writeCodedError(w, errs.New(errs.Unauthenticated, "Unauthorized device"))
		return
	}

	store := h.boards.ForSubject(h.cfg.BoardUserSub)
	snap, err := device.BuildSnapshot(store, time.Now(), h.cfg.BoardTimezone)
	if err != nil {
		obs.From(r.Context()).Error("snapshot build failed", "error", err)
		writeCodedError(w, errs.Wrap(errs.Internal, "Snapshot unavailable", err))
		return
	}

	device.Respond(w, r, snap)
}
