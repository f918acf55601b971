package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leafline/messaging-core/internal/campaign"
	"github.com/leafline/messaging-core/internal/compliance"
	"github.com/leafline/messaging-core/internal/model"
)

// sendRequest is the body of POST /api/sms/send.
type sendRequest struct {
	ContactID  string  `json:"contact_id"`
	LocationID *string `json:"location_id,omitempty"`
	Content    string  `json:"content"`
}

// SendSMS handles POST /api/sms/send: evaluate the Compliance Gate and
// enqueue on ALLOW/DEFER; on BLOCK nothing is enqueued and the caller
// gets the failing reasons back with a 422.
func (h *Handlers) SendSMS(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get(TenantIDHeader)
	if tenantID == "" {
		http.Error(w, "missing "+TenantIDHeader, http.StatusBadRequest)
		return
	}

	var body sendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	payload := model.DeliveryJobPayload{
		TenantID:   tenantID,
		ContactID:  body.ContactID,
		LocationID: body.LocationID,
		Content:    body.Content,
	}

	result, err := h.Submitter.Submit(r.Context(), tenantID, body.ContactID, payload)
	if err != nil {
		h.Logger.Error("submit failed", zap.String("tenant_id", tenantID), zap.String("contact_id", body.ContactID), zap.Error(err))
		http.Error(w, "failed to submit send: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(decisionHTTPStatus(result.Decision))

	if result.Decision == compliance.Block {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"blocked": true,
			"reasons": result.Reasons,
		})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"jobId":   result.JobID,
	})
}

// SendCampaign handles POST /api/campaigns/{id}/send: expansion is handed
// off to the campaign queue (it touches one recipient at a time and a
// campaign can have thousands) and the handler returns a tracking job id
// immediately, the same ack-then-process shape the webhook intake uses —
// except here the job is durable, surviving a worker restart mid-campaign,
// not just an in-process goroutine.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	tenantID := r.Header.Get(TenantIDHeader)
	if tenantID == "" {
		http.Error(w, "missing "+TenantIDHeader, http.StatusBadRequest)
		return
	}
	campaignID := chi.URLParam(r, "id")

	jobID, err := h.CampaignQueue.Enqueue(r.Context(), campaign.QueueKind, model.CampaignJobPayload{
		TenantID:   tenantID,
		CampaignID: campaignID,
	}, 0)
	if err != nil {
		h.Logger.Error("campaign enqueue failed", zap.String("tenant_id", tenantID), zap.String("campaign_id", campaignID), zap.Error(err))
		http.Error(w, "failed to enqueue campaign send: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"jobId":   jobID,
	})
}
