package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dittorahmat/amal-kita/internal/authz"
	"github.com/dittorahmat/amal-kita/internal/donation"
	"github.com/dittorahmat/amal-kita/internal/events"
)

// Store is the persistence surface the handlers need.
type Store interface {
	InsertCampaign(ctx context.Context, c donation.Campaign) error
	GetCampaign(ctx context.Context, id string) (donation.Campaign, error)
	ListCampaigns(ctx context.Context) ([]donation.Campaign, error)
	InsertDonation(ctx context.Context, d donation.Donation) error
	GetDonation(ctx context.Context, id string) (donation.Donation, error)
}

// Syncer kicks off the background invoice sync for a stored donation.
// A nil Syncer means the accounting integration is disabled.
type Syncer interface {
	Dispatch(d donation.Donation, c donation.Campaign)
}

// Publisher matches events.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, evt events.Envelope) error
}

// Deps bundles what the route handlers depend on. Syncer, Producer and
// Authz may be nil.
type Deps struct {
	Store    Store
	Syncer   Syncer
	Producer Publisher
	Topic    string
	Authz    authz.Client
}

// RegisterCampaignRoutes wires the campaign endpoints into the mux,
// including POST /api/campaigns/{id}/donations. Campaign creation is
// guarded by an authz check; donating is open.
func RegisterCampaignRoutes(mux *http.ServeMux, deps Deps) {
	checker := deps.Authz
	if checker == nil {
		checker = &authz.NoopClient{}
	}
	requireCreate := authz.Require(checker, func(r *http.Request) (string, string) {
		if r.Method == http.MethodPost {
			return "campaign:catalog", "can_create"
		}
		return "", ""
	})

	mux.Handle("/api/campaigns", otelhttp.NewHandler(requireCreate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handleCampaignsList(deps, w, r)
		case http.MethodPost:
			handleCampaignCreate(deps, w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})), "campaigns"))

	mux.Handle("/api/campaigns/", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleCampaign(deps, w, r)
	}), "campaign"))
}

func handleCampaignsList(deps Deps, w http.ResponseWriter, r *http.Request) {
	list, err := deps.Store.ListCampaigns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list campaigns")
		return
	}
	if list == nil {
		list = []donation.Campaign{}
	}
	writeSuccess(w, http.StatusOK, list)
}

func handleCampaignCreate(deps Deps, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        string  `json:"title"`
		Description  string  `json:"description"`
		Organizer    string  `json:"organizer"`
		TargetAmount float64 `json:"targetAmount"`
		Category     string  `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	c := donation.Campaign{
		ID:           "camp_" + uuid.NewString()[:8],
		Title:        strings.TrimSpace(req.Title),
		Description:  req.Description,
		Organizer:    req.Organizer,
		TargetAmount: req.TargetAmount,
		Category:     req.Category,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := deps.Store.InsertCampaign(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "could not store campaign")
		return
	}
	writeSuccess(w, http.StatusCreated, c)
}

func handleCampaign(deps Deps, w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/campaigns/")
	if path == "" {
		writeError(w, http.StatusBadRequest, "campaign id required")
		return
	}

	if strings.HasSuffix(path, "/donations") {
		campaignID := strings.TrimSuffix(path, "/donations")
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleDonationCreate(deps, w, r, campaignID)
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	c, err := deps.Store.GetCampaign(r.Context(), path)
	if err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}
	writeSuccess(w, http.StatusOK, c)
}

func writeSuccess(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
