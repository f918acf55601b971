package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// ListCampaigns returns a tenant's campaigns, paginated and optionally
// filtered by status.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get(TenantIDHeader)
	if tenantID == "" {
		http.Error(w, "missing "+TenantIDHeader, http.StatusBadRequest)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	status := r.URL.Query().Get("status")

	campaigns, total, err := h.Campaigns.ListCampaigns(r.Context(), tenantID, status, (page-1)*pageSize, pageSize)
	if err != nil {
		http.Error(w, "failed to list campaigns: "+err.Error(), http.StatusInternalServerError)
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck
		"data": campaigns,
		"pagination": pagination{
			Page: page, PageSize: pageSize, TotalCount: total, TotalPages: totalPages,
		},
	})
}

// GetCampaign returns a single campaign's detail, including its delivery
// counters.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get(TenantIDHeader)
	if tenantID == "" {
		http.Error(w, "missing "+TenantIDHeader, http.StatusBadRequest)
		return
	}
	campaignID := chi.URLParam(r, "id")

	camp, err := h.Campaigns.GetCampaign(r.Context(), tenantID, campaignID)
	if err != nil {
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(camp) //nolint:errcheck
}
