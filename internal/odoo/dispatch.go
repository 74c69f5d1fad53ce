package odoo

import (
	"context"
	"log"

	"github.com/dittorahmat/amal-kita/internal/donation"
	"github.com/dittorahmat/amal-kita/internal/events"
)

// ResultStore records the sync result against the donation row. The
// donation is already committed; these writes are best effort.
type ResultStore interface {
	MarkDonationSynced(ctx context.Context, donationID string, invoiceID int64, invoiceNumber string) error
	MarkDonationSyncFailed(ctx context.Context, donationID, reason string) error
}

// Publisher matches events.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, evt events.Envelope) error
}

// ServiceFactory builds a synthesizer for one sync run. Each run gets its
// own Service and RPC client, so concurrent dispatches never share a
// session cache.
type ServiceFactory func() *Service

// Dispatcher is the boundary between "donation succeeded" and "invoice
// synthesis attempted". Dispatch detaches the sync from the caller's
// request; Run executes it synchronously for queue consumers.
type Dispatcher struct {
	NewService ServiceFactory
	Store      ResultStore
	Producer   Publisher
	Topic      string
}

// Dispatch runs the sync in the background. The caller's transaction is
// already acknowledged; nothing that happens here can reach it.
func (dp *Dispatcher) Dispatch(d donation.Donation, c donation.Campaign) {
	go dp.Run(context.Background(), d, c)
}

// Run performs one sync and records/publishes the result.
func (dp *Dispatcher) Run(ctx context.Context, d donation.Donation, c donation.Campaign) Outcome {
	out := dp.NewService().SyncDonation(ctx, d.Donor, c)

	if out.Created() {
		if dp.Store != nil {
			if err := dp.Store.MarkDonationSynced(ctx, d.ID, out.InvoiceID, out.Number); err != nil {
				log.Printf("[odoo] could not record sync result for donation %s: %v", d.ID, err)
			}
		}
		dp.publish(ctx, events.InvoiceSynced, d, map[string]any{
			"donationId":    d.ID,
			"campaignId":    c.ID,
			"invoiceId":     out.InvoiceID,
			"invoiceNumber": out.Number,
			"posting":       out.Posting.String(),
		})
		return out
	}

	reason := "invoice not created"
	if out.Err != nil {
		reason = out.Err.Error()
	}
	if dp.Store != nil {
		if err := dp.Store.MarkDonationSyncFailed(ctx, d.ID, reason); err != nil {
			log.Printf("[odoo] could not record sync failure for donation %s: %v", d.ID, err)
		}
	}
	dp.publish(ctx, events.InvoiceSyncFailed, d, map[string]any{
		"donationId": d.ID,
		"campaignId": c.ID,
		"reason":     reason,
	})
	return out
}

func (dp *Dispatcher) publish(ctx context.Context, eventType string, d donation.Donation, data map[string]any) {
	if dp.Producer == nil || dp.Topic == "" {
		return
	}
	evt := events.Envelope{
		EventType:    eventType,
		EventVersion: "1",
		AggregateID:  d.ID,
		Data:         data,
	}
	if err := dp.Producer.Publish(ctx, dp.Topic, d.ID, evt); err != nil {
		log.Printf("[odoo] could not publish %s for donation %s: %v", eventType, d.ID, err)
	}
}
