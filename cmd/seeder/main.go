// cmd/seeder/main.go
package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/leafline/messaging-core/internal/config"
	"github.com/leafline/messaging-core/internal/model"
	"github.com/leafline/messaging-core/internal/store"
)

// seeds a single demo tenant with one location and a handful of contacts
// in varying consent states, plus a draft campaign targeting them. Useful
// for exercising the Compliance Gate's checks locally without a real
// onboarding flow.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()
	st := store.New(db)

	ctx := context.Background()
	tenantID := uuid.NewString()
	locationID := uuid.NewString()
	smsNumber := "+18005550100"

	if err := seedLocation(ctx, db, locationID, tenantID, smsNumber); err != nil {
		log.Fatalf("seed location: %v", err)
	}
	log.Printf("seeded location %s for tenant %s", locationID, tenantID)

	contacts := []*model.Contact{
		{
			ID: uuid.NewString(), TenantID: tenantID, Phone: "+14155550001",
			PrimaryLocationID: &locationID, SMSConsent: true,
			SMSConsentMethod: model.ConsentMethodManual, AgeVerified: true,
			Tags: []string{"vip"},
		},
		{
			ID: uuid.NewString(), TenantID: tenantID, Phone: "+14155550002",
			PrimaryLocationID: &locationID, SMSConsent: true,
			SMSConsentMethod: model.ConsentMethodKeywordReply, AgeVerified: true,
		},
		{
			ID: uuid.NewString(), TenantID: tenantID, Phone: "+14155550003",
			PrimaryLocationID: &locationID, SMSConsent: false, SMSOptedOut: true,
		},
	}
	for _, c := range contacts {
		now := time.Now()
		c.SMSConsentAt = &now
		if err := st.UpsertContact(ctx, c); err != nil {
			log.Fatalf("seed contact %s: %v", c.Phone, err)
		}
	}
	log.Printf("seeded %d contacts", len(contacts))

	campaign := &model.Campaign{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Name:       "Welcome Blast",
		Kind:       model.CampaignKindSMS,
		ContentSMS: "Hi! Thanks for stopping by. Reply STOP to opt out.",
		Targeting:  model.Targeting{LocationIDs: []string{locationID}},
		Status:     model.CampaignStatusDraft,
	}
	if err := st.CreateCampaign(ctx, campaign); err != nil {
		log.Fatalf("seed campaign: %v", err)
	}
	log.Printf("seeded campaign %s", campaign.ID)

	log.Println("seeding complete")
}

func seedLocation(ctx context.Context, db *sql.DB, locationID, tenantID, smsNumber string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO locations (id, tenant_id, state_code, timezone, sms_phone_number, created_at)
		 VALUES ($1,$2,$3,$4,$5,NOW())`,
		locationID, tenantID, "CA", "America/Los_Angeles", smsNumber,
	)
	return err
}
