package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/derpdot/cardshop/internal/inventory"
)

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := filterFromQuery(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		records := deps.Index.Query(filter)
		if records == nil {
			records = []inventory.CardRecord{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"cards": records,
			"count": len(records),
		})
	}
}

func handleCard(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid card id")
			return
		}
		rec, err := deps.Index.GetByID(id)
		if errors.Is(err, inventory.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "card %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "looking up card: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Index.Statistics())
	}
}

// handleReload replaces the inventory snapshot. A request with a CSV body
// loads that table; an empty body re-reads the configured inventory file.
// A failed load keeps the previous snapshot, so reload is safe to retry.
func handleReload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var (
			report inventory.LoadReport
			err    error
		)
		if r.ContentLength != 0 {
			report, err = deps.Index.Load(r.Body)
		} else {
			report, err = deps.Index.LoadFile(deps.InventoryPath)
		}
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "reloading inventory: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleTranscripts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid limit")
				return
			}
			limit = n
		}

		var err error
		var transcripts any
		if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
			transcripts, err = deps.Store.GetSessionTranscripts(sessionID, limit)
		} else {
			transcripts, err = deps.Store.GetRecentTranscripts(limit)
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "listing transcripts: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcripts": transcripts})
	}
}

// filterFromQuery maps URL query parameters onto a SearchFilter. Structured
// parameters only; free text goes through POST /chat where the planner can
// also mine it for constraints.
func filterFromQuery(r *http.Request) (inventory.SearchFilter, error) {
	q := r.URL.Query()
	f := inventory.DefaultFilter()
	f.Text = q.Get("query")
	f.SetName = q.Get("set_name")
	f.Condition = q.Get("condition")
	f.Rarity = q.Get("rarity")

	if raw := q.Get("min_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return f, errors.New("invalid min_price")
		}
		f.MinPrice = &v
	}
	if raw := q.Get("max_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			return f, errors.New("invalid max_price")
		}
		f.MaxPrice = &v
	}
	if raw := q.Get("in_stock_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, errors.New("invalid in_stock_only")
		}
		f.InStockOnly = v
	}
	if raw := q.Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, errors.New("invalid max_results")
		}
		f.MaxResults = n
	}
	return f, nil
}
