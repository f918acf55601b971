package reconcile_test

import (
	"context"
	"testing"

	appErrors "github.com/leafline/messaging-core/internal/errors"
	"github.com/leafline/messaging-core/internal/model"
	"github.com/leafline/messaging-core/internal/provider"
	"github.com/leafline/messaging-core/internal/reconcile"
	"github.com/leafline/messaging-core/internal/store"
)

type fakeStore struct {
	messagesByProvider map[string]*model.Message
	locationsByNumber  map[string]*model.Location
	contactsByPhone    map[string]*model.Contact
	created            []*model.Message
	counterCalls       []counterCall
	optOutLog          []*model.OptOutLogEntry
	globalOptOuts      map[string]bool
	optOutSet          map[string]bool
	upserted           []*model.Contact
	recentCampaignID   *string
	regressionErr      error
}

type counterCall struct {
	campaignID string
	counter    store.CampaignCounter
	delta      int
}

func (f *fakeStore) FindMessageByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	return f.messagesByProvider[providerMessageID], nil
}
func (f *fakeStore) UpdateMessageStatus(ctx context.Context, tenantID, messageID string, status model.MessageStatus, providerMessageID, providerStatus, errText *string) (bool, error) {
	if f.regressionErr != nil {
		return false, f.regressionErr
	}
	for _, m := range f.messagesByProvider {
		if m.ID == messageID {
			if m.Status == status {
				return false, nil
			}
			m.Status = status
			if providerStatus != nil {
				m.ProviderStatus = *providerStatus
			}
			if errText != nil {
				m.Error = *errText
			}
			return true, nil
		}
	}
	return false, nil
}
func (f *fakeStore) IncrementCampaignCounter(ctx context.Context, tenantID, campaignID string, counter store.CampaignCounter, delta int) error {
	f.counterCalls = append(f.counterCalls, counterCall{campaignID, counter, delta})
	return nil
}
func (f *fakeStore) FindLocationBySMSNumber(ctx context.Context, number string) (*model.Location, error) {
	return f.locationsByNumber[number], nil
}
func (f *fakeStore) FindContactByPhone(ctx context.Context, tenantID, phone string) (*model.Contact, error) {
	return f.contactsByPhone[phone], nil
}
func (f *fakeStore) CreateMessage(ctx context.Context, m *model.Message) error {
	f.created = append(f.created, m)
	return nil
}
func (f *fakeStore) SetSMSOptOut(ctx context.Context, tenantID, contactID string, optedOut bool) error {
	if f.optOutSet == nil {
		f.optOutSet = map[string]bool{}
	}
	f.optOutSet[contactID] = optedOut
	return nil
}
func (f *fakeStore) UpsertContact(ctx context.Context, c *model.Contact) error {
	f.upserted = append(f.upserted, c)
	return nil
}
func (f *fakeStore) InsertOptOutLogEntry(ctx context.Context, e *model.OptOutLogEntry) error {
	f.optOutLog = append(f.optOutLog, e)
	return nil
}
func (f *fakeStore) InsertGlobalOptOut(ctx context.Context, phoneNumber, sourceTenantID string) error {
	if f.globalOptOuts == nil {
		f.globalOptOuts = map[string]bool{}
	}
	f.globalOptOuts[phoneNumber] = true
	return nil
}
func (f *fakeStore) DeleteGlobalOptOut(ctx context.Context, phoneNumber string) error {
	if f.globalOptOuts != nil {
		delete(f.globalOptOuts, phoneNumber)
	}
	return nil
}
func (f *fakeStore) MostRecentOutboundCampaignID(ctx context.Context, tenantID, contactID string) (*string, error) {
	return f.recentCampaignID, nil
}

type fakeSender struct {
	calls int
}

func (f *fakeSender) Send(ctx context.Context, to, from, content string) (*provider.SendResult, error) {
	f.calls++
	return &provider.SendResult{ProviderMessageID: "conf-1", SegmentCount: 1}, nil
}

func strPtr(s string) *string { return &s }

func TestOnStatus_MapsAndIncrementsCampaignCounter(t *testing.T) {
	campaignID := "camp1"
	s := &fakeStore{
		messagesByProvider: map[string]*model.Message{
			"prov-1": {ID: "m1", TenantID: "t1", CampaignID: &campaignID, Status: model.StatusSent},
		},
	}
	r := reconcile.New(s, &fakeSender{})

	err := r.OnStatus(context.Background(), "prov-1", "delivered", nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.messagesByProvider["prov-1"].Status != model.StatusDelivered {
		t.Fatalf("expected status delivered, got %s", s.messagesByProvider["prov-1"].Status)
	}
	if len(s.counterCalls) != 1 || s.counterCalls[0].counter != store.CounterDelivered {
		t.Fatalf("expected one delivered_count increment, got %+v", s.counterCalls)
	}
}

func TestOnStatus_ReplayedStatusDoesNotDoubleCountCounter(t *testing.T) {
	campaignID := "camp1"
	s := &fakeStore{
		messagesByProvider: map[string]*model.Message{
			"prov-1": {ID: "m1", TenantID: "t1", CampaignID: &campaignID, Status: model.StatusSent},
		},
	}
	r := reconcile.New(s, &fakeSender{})

	if err := r.OnStatus(context.Background(), "prov-1", "delivered", nil); err != nil {
		t.Fatal(err)
	}
	// A duplicate carrier callback for the same terminal status must not
	// increment the campaign counter a second time.
	if err := r.OnStatus(context.Background(), "prov-1", "delivered", nil); err != nil {
		t.Fatal(err)
	}
	if len(s.counterCalls) != 1 {
		t.Fatalf("expected exactly one delivered_count increment across the replay, got %+v", s.counterCalls)
	}
}

func TestOnStatus_PersistsProviderErrorText(t *testing.T) {
	s := &fakeStore{
		messagesByProvider: map[string]*model.Message{
			"prov-1": {ID: "m1", TenantID: "t1", Status: model.StatusSending},
		},
	}
	r := reconcile.New(s, &fakeSender{})

	errText := "30007: Carrier filtered - spam suspected"
	if err := r.OnStatus(context.Background(), "prov-1", "delivery_failed", &errText); err != nil {
		t.Fatal(err)
	}
	msg := s.messagesByProvider["prov-1"]
	if msg.Status != model.StatusFailed {
		t.Fatalf("expected status failed, got %s", msg.Status)
	}
	if msg.Error != errText {
		t.Fatalf("expected error text %q persisted, got %q", errText, msg.Error)
	}
	if msg.ProviderStatus != "delivery_failed" {
		t.Fatalf("expected provider_status delivery_failed persisted, got %q", msg.ProviderStatus)
	}
}

func TestOnStatus_StaleRegressionIsHandledAsNoop(t *testing.T) {
	s := &fakeStore{
		messagesByProvider: map[string]*model.Message{
			"prov-1": {ID: "m1", TenantID: "t1", Status: model.StatusDelivered},
		},
		regressionErr: appErrors.NewStatusRegression("m1", "delivered", "sending"),
	}
	r := reconcile.New(s, &fakeSender{})

	if err := r.OnStatus(context.Background(), "prov-1", "sending", nil); err != nil {
		t.Fatalf("expected a stale/out-of-order callback to be a no-op, got %v", err)
	}
	if len(s.counterCalls) != 0 {
		t.Fatalf("expected no counter updates on a regressed update, got %+v", s.counterCalls)
	}
}

func TestOnStatus_UnknownProviderIDIsNoop(t *testing.T) {
	s := &fakeStore{messagesByProvider: map[string]*model.Message{}}
	r := reconcile.New(s, &fakeSender{})

	if err := r.OnStatus(context.Background(), "ghost", "delivered", nil); err != nil {
		t.Fatal(err)
	}
	if len(s.counterCalls) != 0 {
		t.Fatalf("expected no counter updates, got %+v", s.counterCalls)
	}
}

func TestOnInbound_DropsUnknownDestination(t *testing.T) {
	s := &fakeStore{locationsByNumber: map[string]*model.Location{}}
	r := reconcile.New(s, &fakeSender{})

	res, err := r.OnInbound(context.Background(), "+14155550000", "+18005551212", "hello", "prov-in-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != "dropped_unknown_destination" {
		t.Fatalf("expected dropped_unknown_destination, got %s", res.Action)
	}
	if len(s.created) != 0 {
		t.Fatal("expected no message row on unknown destination")
	}
}

func TestOnInbound_StopKeywordOptsOutAndConfirms(t *testing.T) {
	loc := &model.Location{ID: "loc1", TenantID: "t1", SMSPhoneNumber: strPtr("+18005551212")}
	contact := &model.Contact{ID: "c1", TenantID: "t1", Phone: "+14155550000", SMSConsent: true}
	s := &fakeStore{
		locationsByNumber: map[string]*model.Location{"+18005551212": loc},
		contactsByPhone:   map[string]*model.Contact{"+14155550000": contact},
	}
	sender := &fakeSender{}
	r := reconcile.New(s, sender)

	res, err := r.OnInbound(context.Background(), "+14155550000", "+18005551212", "stop", "prov-in-2")
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != "opted_out" {
		t.Fatalf("expected opted_out, got %s", res.Action)
	}
	if !s.optOutSet["c1"] {
		t.Fatal("expected contact to be marked opted out")
	}
	if !s.globalOptOuts["+14155550000"] {
		t.Fatal("expected global opt-out to be recorded")
	}
	if len(s.optOutLog) != 1 || s.optOutLog[0].Action != model.ActionOptOut {
		t.Fatalf("expected one opt_out log entry, got %+v", s.optOutLog)
	}
	if sender.calls != 1 {
		t.Fatalf("expected one confirmation send, got %d", sender.calls)
	}
	if len(s.created) != 2 {
		t.Fatalf("expected the inbound message and the outbound confirmation to be recorded, got %d", len(s.created))
	}
	confirmation := s.created[1]
	if confirmation.Direction != model.DirectionOutbound || confirmation.Content != r.OptOutConfirmMsg {
		t.Fatalf("expected an outbound confirmation message row, got %+v", confirmation)
	}
}

func TestOnInbound_StopKeywordAttributesOptOutToCampaign(t *testing.T) {
	campaignID := "camp1"
	loc := &model.Location{ID: "loc1", TenantID: "t1", SMSPhoneNumber: strPtr("+18005551212")}
	contact := &model.Contact{ID: "c1", TenantID: "t1", Phone: "+14155550000", SMSConsent: true}
	s := &fakeStore{
		locationsByNumber: map[string]*model.Location{"+18005551212": loc},
		contactsByPhone:   map[string]*model.Contact{"+14155550000": contact},
		recentCampaignID:  &campaignID,
	}
	r := reconcile.New(s, &fakeSender{})

	if _, err := r.OnInbound(context.Background(), "+14155550000", "+18005551212", "stop", "prov-in-5"); err != nil {
		t.Fatal(err)
	}
	if len(s.counterCalls) != 1 || s.counterCalls[0].campaignID != campaignID || s.counterCalls[0].counter != store.CounterOptedOut {
		t.Fatalf("expected one opted_out_count increment for camp1, got %+v", s.counterCalls)
	}
}

func TestOnInbound_StartKeywordOptsInAndConfirms(t *testing.T) {
	loc := &model.Location{ID: "loc1", TenantID: "t1", SMSPhoneNumber: strPtr("+18005551212")}
	contact := &model.Contact{ID: "c1", TenantID: "t1", Phone: "+14155550000", SMSOptedOut: true}
	s := &fakeStore{
		locationsByNumber: map[string]*model.Location{"+18005551212": loc},
		contactsByPhone:   map[string]*model.Contact{"+14155550000": contact},
		globalOptOuts:     map[string]bool{"+14155550000": true},
	}
	sender := &fakeSender{}
	r := reconcile.New(s, sender)

	res, err := r.OnInbound(context.Background(), "+14155550000", "+18005551212", "  start  ", "prov-in-3")
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != "opted_in" {
		t.Fatalf("expected opted_in, got %s", res.Action)
	}
	if len(s.upserted) != 1 || s.upserted[0].SMSOptedOut {
		t.Fatalf("expected contact upserted with opted-out cleared, got %+v", s.upserted)
	}
	if s.globalOptOuts["+14155550000"] {
		t.Fatal("expected global opt-out to be cleared")
	}
	if sender.calls != 1 {
		t.Fatalf("expected one confirmation send, got %d", sender.calls)
	}
	if len(s.created) != 2 {
		t.Fatalf("expected the inbound message and the outbound confirmation to be recorded, got %d", len(s.created))
	}
	confirmation := s.created[1]
	if confirmation.Direction != model.DirectionOutbound || confirmation.Content != r.OptInConfirmMsg {
		t.Fatalf("expected an outbound confirmation message row, got %+v", confirmation)
	}
}

func TestOnInbound_PlainTextFromKnownContactIsReceived(t *testing.T) {
	loc := &model.Location{ID: "loc1", TenantID: "t1", SMSPhoneNumber: strPtr("+18005551212")}
	contact := &model.Contact{ID: "c1", TenantID: "t1", Phone: "+14155550000"}
	s := &fakeStore{
		locationsByNumber: map[string]*model.Location{"+18005551212": loc},
		contactsByPhone:   map[string]*model.Contact{"+14155550000": contact},
	}
	sender := &fakeSender{}
	r := reconcile.New(s, sender)

	res, err := r.OnInbound(context.Background(), "+14155550000", "+18005551212", "what time do you open?", "prov-in-4")
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != "received" {
		t.Fatalf("expected received, got %s", res.Action)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no confirmation send, got %d calls", sender.calls)
	}
	if len(s.created) != 1 || s.created[0].ContactID != "c1" {
		t.Fatalf("expected inbound message attributed to contact, got %+v", s.created)
	}
}
