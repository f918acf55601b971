package httpapi_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/leafline/messaging-core/internal/compliance"
	"github.com/leafline/messaging-core/internal/delivery"
	"github.com/leafline/messaging-core/internal/httpapi"
	"github.com/leafline/messaging-core/internal/model"
	"github.com/leafline/messaging-core/internal/reconcile"
)

type fakeSubmitter struct {
	result *delivery.SubmitResult
	err    error
}

func (f *fakeSubmitter) Submit(ctx context.Context, tenantID, contactID string, payload model.DeliveryJobPayload) (*delivery.SubmitResult, error) {
	return f.result, f.err
}

type enqueuedCampaignJob struct {
	kind    string
	payload interface{}
	delay   time.Duration
}

type fakeEnqueuer struct {
	enqueued []enqueuedCampaignJob
	err      error
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, kind string, payload interface{}, delay time.Duration) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, enqueuedCampaignJob{kind: kind, payload: payload, delay: delay})
	return "job-1", nil
}

type fakeReconciler struct {
	statusCalls  int
	inboundCalls int
	inboundRes   *reconcile.InboundResult
}

func (f *fakeReconciler) OnStatus(ctx context.Context, providerMessageID, providerStatus string, errText *string) error {
	f.statusCalls++
	return nil
}

func (f *fakeReconciler) OnInbound(ctx context.Context, from, to, text, providerMessageID string) (*reconcile.InboundResult, error) {
	f.inboundCalls++
	return f.inboundRes, nil
}

type fakeVerifier struct {
	err error
}

func (f *fakeVerifier) VerifyWebhookSignature(rawBody []byte, timestamp string, signature []byte, now time.Time) error {
	return f.err
}

type fakeCampaignReader struct {
	campaigns []*model.Campaign
	total     int
	byID      map[string]*model.Campaign
}

func (f *fakeCampaignReader) ListCampaigns(ctx context.Context, tenantID, status string, offset, limit int) ([]*model.Campaign, int, error) {
	return f.campaigns, f.total, nil
}

func (f *fakeCampaignReader) GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	return f.byID[campaignID], nil
}

func newHandlers(sub httpapi.Submitter, cq httpapi.Enqueuer, rec *fakeReconciler, ver httpapi.SignatureVerifier) *httpapi.Handlers {
	return &httpapi.Handlers{
		Submitter:     sub,
		CampaignQueue: cq,
		Status:        rec,
		Inbound:       rec,
		Verifier:      ver,
		Logger:        zap.NewNop(),
		Now:           time.Now,
	}
}

func TestSendSMS_AllowReturns200WithJobID(t *testing.T) {
	h := newHandlers(&fakeSubmitter{result: &delivery.SubmitResult{Decision: compliance.Allow, JobID: "job-1"}}, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{"contact_id": "c1", "content": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader(body))
	req.Header.Set(httpapi.TenantIDHeader, "t1")
	rec := httptest.NewRecorder()

	h.SendSMS(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["jobId"] != "job-1" {
		t.Fatalf("expected jobId job-1, got %+v", out)
	}
}

func TestSendSMS_BlockReturns422WithReasons(t *testing.T) {
	h := newHandlers(&fakeSubmitter{result: &delivery.SubmitResult{Decision: compliance.Block, Reasons: []string{"No SMS consent on file"}}}, nil, nil, nil)

	body, _ := json.Marshal(map[string]string{"contact_id": "c1", "content": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader(body))
	req.Header.Set(httpapi.TenantIDHeader, "t1")
	rec := httptest.NewRecorder()

	h.SendSMS(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("No SMS consent on file")) {
		t.Fatalf("expected reasons in body, got %s", rec.Body.String())
	}
}

func TestSendSMS_MissingTenantHeaderIs400(t *testing.T) {
	h := newHandlers(&fakeSubmitter{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/sms/send", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	h.SendSMS(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendCampaign_EnqueuesCampaignJobAndReturnsJobID(t *testing.T) {
	cq := &fakeEnqueuer{}
	h := newHandlers(nil, cq, nil, nil)

	r := chi.NewRouter()
	r.Post("/api/campaigns/{id}/send", h.SendCampaign)

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/camp1/send", nil)
	req.Header.Set(httpapi.TenantIDHeader, "t1")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out["jobId"] == "" || out["jobId"] == nil {
		t.Fatalf("expected a jobId, got %+v", out)
	}

	if len(cq.enqueued) != 1 {
		t.Fatalf("expected one campaign job enqueued, got %+v", cq.enqueued)
	}
	payload, ok := cq.enqueued[0].payload.(model.CampaignJobPayload)
	if !ok || payload.CampaignID != "camp1" || payload.TenantID != "t1" {
		t.Fatalf("expected campaign job payload for camp1/t1, got %+v", cq.enqueued[0].payload)
	}
}

func TestWebhook_InvalidSignatureRejected(t *testing.T) {
	h := newHandlers(nil, nil, &fakeReconciler{}, &fakeVerifier{err: context.DeadlineExceeded})

	r := chi.NewRouter()
	r.Post("/webhooks/{carrier}", h.Webhook)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWebhook_ValidSignatureAcksThenProcessesStatus(t *testing.T) {
	fr := &fakeReconciler{}
	h := newHandlers(nil, nil, fr, &fakeVerifier{})

	r := chi.NewRouter()
	r.Post("/webhooks/{carrier}", h.Webhook)

	payload := []byte(`{"data":{"event_type":"message.delivered","payload":{"id":"prov-1","to":[{"status":"delivered"}]}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", bytes.NewReader(payload))
	req.Header.Set(httpapi.SignatureHeader, base64.StdEncoding.EncodeToString([]byte("sig")))
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d", rec.Code)
	}

	deadline := time.Now().Add(time.Second)
	for fr.statusCalls == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fr.statusCalls != 1 {
		t.Fatalf("expected OnStatus to be called once, got %d", fr.statusCalls)
	}
}

func TestListCampaigns_ReturnsDataAndPagination(t *testing.T) {
	h := &httpapi.Handlers{
		Campaigns: &fakeCampaignReader{campaigns: []*model.Campaign{{ID: "camp1", Name: "Summer"}}, total: 1},
		Logger:    zap.NewNop(), Now: time.Now,
	}

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns", nil)
	req.Header.Set(httpapi.TenantIDHeader, "t1")
	rec := httptest.NewRecorder()

	h.ListCampaigns(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	pag := out["pagination"].(map[string]interface{})
	if int(pag["total_count"].(float64)) != 1 {
		t.Fatalf("expected total_count 1, got %+v", pag)
	}
}

func TestGetCampaign_ReturnsCampaign(t *testing.T) {
	h := &httpapi.Handlers{
		Campaigns: &fakeCampaignReader{byID: map[string]*model.Campaign{"camp1": {ID: "camp1", Name: "Summer"}}},
		Logger:    zap.NewNop(), Now: time.Now,
	}

	r := chi.NewRouter()
	r.Get("/api/campaigns/{id}", h.GetCampaign)

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/camp1", nil)
	req.Header.Set(httpapi.TenantIDHeader, "t1")
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("Summer")) {
		t.Fatalf("expected campaign name in body, got %s", rec.Body.String())
	}
}

func TestWebhook_UnhandledEventTypeDoesNotCallReconciler(t *testing.T) {
	fr := &fakeReconciler{}
	h := newHandlers(nil, nil, fr, &fakeVerifier{})

	r := chi.NewRouter()
	r.Post("/webhooks/{carrier}", h.Webhook)

	payload := []byte(`{"data":{"event_type":"message.unknown","payload":{}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telnyx", bytes.NewReader(payload))
	rec := httptest.NewRecorder()

	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	time.Sleep(20 * time.Millisecond)
	if fr.statusCalls != 0 || fr.inboundCalls != 0 {
		t.Fatalf("expected no reconciler calls, got status=%d inbound=%d", fr.statusCalls, fr.inboundCalls)
	}
}

