package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dittorahmat/amal-kita/internal/donation"
	"github.com/dittorahmat/amal-kita/internal/events"
)

// RegisterDonationRoutes wires GET /api/donations/{id}.
func RegisterDonationRoutes(mux *http.ServeMux, deps Deps) {
	mux.Handle("/api/donations/", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/donations/")
		if id == "" {
			writeError(w, http.StatusBadRequest, "donation id required")
			return
		}
		d, err := deps.Store.GetDonation(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusNotFound, "donation not found")
			return
		}
		writeSuccess(w, http.StatusOK, d)
	}), "donation"))
}

// handleDonationCreate acknowledges the donation as soon as it is stored.
// The invoice sync runs after the response; its failure can never turn a
// stored donation into an error.
func handleDonationCreate(deps Deps, w http.ResponseWriter, r *http.Request, campaignID string) {
	var req struct {
		Name    string  `json:"name"`
		Amount  float64 `json:"amount"`
		Message string  `json:"message"`
		Email   string  `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	c, err := deps.Store.GetCampaign(r.Context(), campaignID)
	if err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}

	now := time.Now().UnixMilli()
	d := donation.Donation{
		ID:         "don_" + uuid.NewString()[:8],
		CampaignID: c.ID,
		SyncStatus: donation.SyncPending,
		CreatedAt:  now,
	}
	d.Donor = donation.Donor{
		ID:        d.ID,
		Name:      strings.TrimSpace(req.Name),
		Amount:    req.Amount,
		Message:   req.Message,
		Email:     req.Email,
		Timestamp: now,
	}
	if err := deps.Store.InsertDonation(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, "could not store donation")
		return
	}

	if deps.Producer != nil && deps.Topic != "" {
		evt := events.Envelope{
			EventType:    events.DonationCreated,
			EventVersion: "1",
			AggregateID:  d.ID,
			Data:         events.DonationPayload{Donation: d, Campaign: c},
		}
		if err := deps.Producer.Publish(r.Context(), deps.Topic, d.ID, evt); err != nil {
			log.Printf("[API] could not publish DonationCreated for %s: %v", d.ID, err)
		}
	}

	if deps.Syncer != nil {
		deps.Syncer.Dispatch(d, c)
	}

	writeSuccess(w, http.StatusCreated, d)
}
