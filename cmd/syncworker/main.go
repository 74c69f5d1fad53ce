package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"

	appconfig "github.com/dittorahmat/amal-kita/internal/config"
	"github.com/dittorahmat/amal-kita/internal/events"
	"github.com/dittorahmat/amal-kita/internal/odoo"
	"github.com/dittorahmat/amal-kita/internal/secrets"
	postgres "github.com/dittorahmat/amal-kita/internal/storage/postgres"
	"github.com/dittorahmat/amal-kita/internal/xmlrpc"
)

// Standalone invoice sync worker. Consumes DonationCreated events and runs
// the same pipeline the server dispatches in-process. Run it instead of
// configuring ODOO_* on the server when syncs should survive restarts.
func main() {
	log.Println("Invoice sync worker starting...")
	_ = godotenv.Load()
	if err := secrets.Bootstrap(context.Background()); err != nil {
		log.Printf("WARNING: secrets bootstrap failed: %v", err)
	}

	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("[sync-worker] config: %v", err)
	}
	if !cfg.Odoo.Enabled() {
		log.Fatal("[sync-worker] ODOO_* must be fully configured")
	}

	var repo *postgres.Repository
	db, err := postgres.OpenDatabase(cfg.Database)
	if err != nil {
		log.Printf("[sync-worker] WARNING: no database, sync results will not be recorded: %v", err)
	} else {
		repo = postgres.NewRepository(db)
		defer postgres.CloseDatabase()
	}

	var seq odoo.Sequencer
	if repo != nil {
		seq = postgres.SequenceSource{Repo: repo}
	}
	// A fresh client per sync run keeps each donation's session isolated.
	factory := func() *odoo.Service {
		client := xmlrpc.NewClient(xmlrpc.ClientConfig{
			BaseURL:  cfg.Odoo.BaseURL,
			Database: cfg.Odoo.Database,
			Username: cfg.Odoo.Username,
			Password: cfg.Odoo.Password,
		})
		return odoo.NewService(client, seq, cfg.Invoice.NumberPrefix)
	}

	prod := events.NewProducerWithBrokers(cfg.Kafka.Brokers)
	defer prod.Close()

	dp := &odoo.Dispatcher{
		NewService: factory,
		Producer:   prod,
		Topic:      cfg.Kafka.DonationsTopic,
	}
	if repo != nil {
		dp.Store = repo
	}

	runConsumer(cfg, dp)
}

func runConsumer(cfg appconfig.Config, dp *odoo.Dispatcher) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.DonationsTopic,
		GroupID:  cfg.Kafka.DonationsGroup,
		MinBytes: 1e3, MaxBytes: 10e6,
	})
	defer reader.Close()

	topic := cfg.Kafka.DonationsTopic
	log.Printf("[sync-worker] consuming %s (group=%s)", topic, cfg.Kafka.DonationsGroup)
	for {
		msg, err := reader.FetchMessage(context.Background())
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Printf("[sync-worker] read error: %v", err)
			return
		}

		var evt events.Envelope
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			log.Printf("[sync-worker] bad JSON: %v; payload=%s", err, string(msg.Value))
			commit(reader, msg)
			continue
		}

		switch evt.EventType {
		case events.DonationCreated:
			handleDonationCreated(dp, evt)
		default:
			// InvoiceSynced / InvoiceSyncFailed are our own output events
		}
		commit(reader, msg)
	}
}

// A failed sync is recorded against the donation and committed anyway;
// redelivery would only repeat the same resolution failure.
func handleDonationCreated(dp *odoo.Dispatcher, evt events.Envelope) {
	payload, err := events.DecodeDonationPayload(evt.Data)
	if err != nil {
		log.Printf("[sync-worker] bad DonationCreated payload for %s: %v", evt.AggregateID, err)
		return
	}
	if payload.Donation.ID == "" {
		log.Printf("[sync-worker] DonationCreated without donation id (aggregate=%s)", evt.AggregateID)
		return
	}

	out := dp.Run(context.Background(), payload.Donation, payload.Campaign)
	if out.Created() {
		log.Printf("[sync-worker] donation %s -> invoice %d (%s)", payload.Donation.ID, out.InvoiceID, out.Number)
	} else {
		log.Printf("[sync-worker] donation %s sync failed: %v", payload.Donation.ID, out.Err)
	}
}

func commit(reader *kafka.Reader, msg kafka.Message) {
	if err := reader.CommitMessages(context.Background(), msg); err != nil {
		log.Printf("[sync-worker] commit error: %v", err)
	}
}
