// Package device serves the machine-facing board snapshot. Polling
// clients send the fingerprint of the last payload they saw and get a
// 304 back when nothing changed, which keeps the poll loop cheap for
// battery-powered displays.
package device

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/roomboard/server/internal/board"
)

// Snapshot is the device payload for one calendar day.
type Snapshot struct {
	Date     string                       `json:"date"`
	People   [board.NumSlots]board.Person `json:"people"`
	Statuses []string                     `json:"statuses"`
	TS       int64                        `json:"ts"`

	fingerprint string
}

// Fingerprint is the content hash of the snapshot's stable fields.
func (s *Snapshot) Fingerprint() string {
	return s.fingerprint
}

// BuildSnapshot derives the current payload from the store. "Today" is
// the calendar date in loc, not an instant. The fingerprint covers
// date, people and statuses only; the generation timestamp is excluded
// so an unchanged board keeps an unchanged fingerprint across polls.
func BuildSnapshot(store *board.Store, now time.Time, loc *time.Location) (*Snapshot, error) {
	date := now.In(loc).Format("2006-01-02")
	snap := &Snapshot{
		Date:     date,
		People:   store.People(),
		Statuses: store.EventsOn(date),
		TS:       now.UnixMilli(),
	}

	stable, err := json.Marshal(struct {
		Date     string                       `json:"date"`
		People   [board.NumSlots]board.Person `json:"people"`
		Statuses []string                     `json:"statuses"`
	}{snap.Date, snap.People, snap.Statuses})
	if err != nil {
		return nil, err
	}
	sum := sha1.Sum(stable)
	snap.fingerprint = hex.EncodeToString(sum[:])
	return snap, nil
}

// Respond writes the snapshot as a conditional GET response: a client
// fingerprint matching the fresh one yields 304 with an empty body,
// anything else yields the full payload with its ETag. No prior
// fingerprints are stored server-side.
func Respond(w http.ResponseWriter, r *http.Request, snap *Snapshot) {
	w.Header().Set("ETag", snap.fingerprint)
	w.Header().Set("Cache-Control", "no-cache")

	if clientFP := r.Header.Get("If-None-Match"); clientFP != "" && clientFP == snap.fingerprint {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
