package main

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	appconfig "github.com/dittorahmat/amal-kita/internal/config"
	"github.com/dittorahmat/amal-kita/internal/email"
	"github.com/dittorahmat/amal-kita/internal/events"
	postgres "github.com/dittorahmat/amal-kita/internal/storage/postgres"
)

// Receipt worker. Emails donors a thank-you when their donation lands and
// a numbered receipt once the invoice sync completes.
func main() {
	log.Println("Receipt worker starting...")
	_ = godotenv.Load()

	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("[receipt-worker] config: %v", err)
	}

	var repo *postgres.Repository
	if db, err := postgres.OpenDatabase(cfg.Database); err != nil {
		log.Printf("[receipt-worker] WARNING: no database, receipt numbers unavailable: %v", err)
	} else {
		repo = postgres.NewRepository(db)
		defer postgres.CloseDatabase()
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.DonationsTopic,
		GroupID:  "receipt-workers", // its own consumer group
		MinBytes: 1e3, MaxBytes: 10e6,
	})
	defer reader.Close()

	sender := pickSender()
	log.Println("[receipt-worker] consuming (group=receipt-workers)")
	for {
		msg, err := reader.ReadMessage(context.Background())
		if err != nil {
			log.Printf("[receipt-worker] read error: %v", err)
			return
		}

		var evt events.Envelope
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			log.Printf("[receipt-worker] bad json: %v; payload=%s", err, string(msg.Value))
			continue
		}

		switch evt.EventType {
		case events.DonationCreated:
			handleDonationCreated(sender, evt)
		case events.InvoiceSynced:
			handleInvoiceSynced(sender, repo, evt)
		default:
			// ignore other event types
		}
	}
}

func handleDonationCreated(sender email.Sender, evt events.Envelope) {
	payload, err := events.DecodeDonationPayload(evt.Data)
	if err != nil {
		log.Printf("[receipt-worker] bad DonationCreated payload: %v", err)
		return
	}
	to := payload.Donation.Donor.Email
	if to == "" {
		return
	}

	body := email.RenderDonationReceiptEmail(payload.Campaign.Title, payload.Donation.Donor.Amount, "")
	if err := sender.Send(to, "Thank you for your donation", body); err != nil {
		log.Printf("[receipt-worker] send failed: %v", err)
		return
	}
	log.Printf("[receipt-worker] sent thank-you to=%s donation=%s", to, payload.Donation.ID)
}

func handleInvoiceSynced(sender email.Sender, repo *postgres.Repository, evt events.Envelope) {
	if repo == nil {
		return
	}
	d, err := repo.GetDonation(context.Background(), evt.AggregateID)
	if err != nil {
		log.Printf("[receipt-worker] donation %s not found: %v", evt.AggregateID, err)
		return
	}
	if d.Donor.Email == "" || d.InvoiceNumber == "" {
		return
	}
	c, err := repo.GetCampaign(context.Background(), d.CampaignID)
	if err != nil {
		log.Printf("[receipt-worker] campaign %s not found: %v", d.CampaignID, err)
		return
	}

	body := email.RenderDonationReceiptEmail(c.Title, d.Donor.Amount, d.InvoiceNumber)
	if err := sender.Send(d.Donor.Email, "Your donation receipt", body); err != nil {
		log.Printf("[receipt-worker] send failed: %v", err)
		return
	}
	log.Printf("[receipt-worker] sent receipt to=%s donation=%s invoice=%s", d.Donor.Email, d.ID, d.InvoiceNumber)
}

func pickSender() email.Sender {
	// Use SMTP if configured; else fallback to log
	if os.Getenv("SMTP_HOST") != "" || os.Getenv("SMTP_PORT") != "" {
		return email.NewSMTPSender()
	}
	return email.LogSender{}
}
