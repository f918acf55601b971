package campaign_test

import (
	"context"
	"testing"

	"github.com/leafline/messaging-core/internal/campaign"
	"github.com/leafline/messaging-core/internal/compliance"
	"github.com/leafline/messaging-core/internal/delivery"
	"github.com/leafline/messaging-core/internal/model"
)

type fakeStore struct {
	campaigns       map[string]*model.Campaign
	contacts        map[string]*model.Contact
	recipients      []string
	sendingCalled   bool
	sentCalled      bool
	totalRecipients int
}

func (f *fakeStore) GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	return f.campaigns[campaignID], nil
}
func (f *fakeStore) FindCampaignRecipients(ctx context.Context, tenantID string, targeting model.Targeting, kind model.CampaignKind) ([]string, error) {
	return f.recipients, nil
}
func (f *fakeStore) GetContact(ctx context.Context, tenantID, contactID string) (*model.Contact, error) {
	return f.contacts[contactID], nil
}
func (f *fakeStore) MarkCampaignSending(ctx context.Context, tenantID, campaignID string, totalRecipients int) error {
	f.sendingCalled = true
	f.totalRecipients = totalRecipients
	return nil
}
func (f *fakeStore) MarkCampaignSent(ctx context.Context, tenantID, campaignID string) error {
	f.sentCalled = true
	return nil
}

type fakeSubmitter struct {
	submitted []string
	blocked   map[string]bool
}

func (f *fakeSubmitter) Submit(ctx context.Context, tenantID, contactID string, payload model.DeliveryJobPayload) (*delivery.SubmitResult, error) {
	f.submitted = append(f.submitted, contactID)
	if f.blocked[contactID] {
		return &delivery.SubmitResult{Decision: compliance.Block, Reasons: []string{"blocked"}}, nil
	}
	return &delivery.SubmitResult{Decision: compliance.Allow, JobID: "job-" + contactID}, nil
}

func TestExpand_EnqueuesOnePerRecipient(t *testing.T) {
	store := &fakeStore{
		campaigns: map[string]*model.Campaign{
			"camp1": {ID: "camp1", TenantID: "t1", ContentSMS: "Hi {contact.location_id}!"},
		},
		contacts: map[string]*model.Contact{
			"c1": {ID: "c1", TenantID: "t1", Phone: "+1", PrimaryLocationID: strPtr("loc1")},
			"c2": {ID: "c2", TenantID: "t1", Phone: "+2", PrimaryLocationID: strPtr("loc1")},
		},
		recipients: []string{"c1", "c2"},
	}
	sub := &fakeSubmitter{}
	e := &campaign.Expander{Store: store, Submitter: sub}

	res, err := e.Expand(context.Background(), "t1", "camp1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Enqueued != 2 {
		t.Errorf("expected 2 enqueued, got %d", res.Enqueued)
	}
	if !store.sendingCalled || !store.sentCalled {
		t.Error("expected campaign to be marked sending then sent")
	}
	if store.totalRecipients != 2 {
		t.Errorf("expected total_recipients=2, got %d", store.totalRecipients)
	}
	if len(sub.submitted) != 2 {
		t.Errorf("expected 2 submissions, got %d", len(sub.submitted))
	}
}

func TestExpand_MissingCampaignErrors(t *testing.T) {
	store := &fakeStore{campaigns: map[string]*model.Campaign{}}
	sub := &fakeSubmitter{}
	e := &campaign.Expander{Store: store, Submitter: sub}

	_, err := e.Expand(context.Background(), "t1", "missing")
	if err == nil {
		t.Fatal("expected error for missing campaign")
	}
}

func TestExpand_SkipsRecipientsThatVanish(t *testing.T) {
	store := &fakeStore{
		campaigns:  map[string]*model.Campaign{"camp1": {ID: "camp1", TenantID: "t1", ContentSMS: "hi"}},
		contacts:   map[string]*model.Contact{},
		recipients: []string{"ghost"},
	}
	sub := &fakeSubmitter{}
	e := &campaign.Expander{Store: store, Submitter: sub}

	res, err := e.Expand(context.Background(), "t1", "camp1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Enqueued != 0 {
		t.Errorf("expected 1 skipped, 0 enqueued, got %+v", res)
	}
}

func TestExpand_BlockedRecipientNotCountedAsEnqueued(t *testing.T) {
	store := &fakeStore{
		campaigns: map[string]*model.Campaign{
			"camp1": {ID: "camp1", TenantID: "t1", ContentSMS: "hi"},
		},
		contacts: map[string]*model.Contact{
			"c1": {ID: "c1", TenantID: "t1", Phone: "+1"},
			"c2": {ID: "c2", TenantID: "t1", Phone: "+2"},
		},
		recipients: []string{"c1", "c2"},
	}
	sub := &fakeSubmitter{blocked: map[string]bool{"c1": true}}
	e := &campaign.Expander{Store: store, Submitter: sub}

	res, err := e.Expand(context.Background(), "t1", "camp1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Blocked != 1 || res.Enqueued != 1 {
		t.Errorf("expected 1 blocked, 1 enqueued, got %+v", res)
	}
}

func strPtr(s string) *string { return &s }
