package odoo

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/dittorahmat/amal-kita/internal/donation"
)

// createInvoice submits the draft customer invoice. The custom invoice
// number is deliberately not part of the create payload: letting Odoo pick
// the draft name avoids collisions with its own numbering sequence, and the
// custom number is written afterwards.
func (s *Service) createInvoice(ctx context.Context, d donation.Donor, c donation.Campaign, out Outcome) (int64, error) {
	ts := time.UnixMilli(d.Timestamp).UTC()

	line := map[string]any{
		"product_id": out.ProductID,
		"name":       fmt.Sprintf("Donation to %q - %s", c.Title, d.Name),
		"quantity":   1,
		"price_unit": d.Amount,
	}
	if out.AccountID != 0 {
		line["account_id"] = out.AccountID
	}

	message := d.Message
	if message == "" {
		message = "Thank you for your support!"
	}

	payload := map[string]any{
		"partner_id":       out.PartnerID,
		"move_type":        "out_invoice",
		"ref":              invoiceRef(c.ID, d.ID),
		"invoice_date":     ts.Format("2006-01-02"),
		"invoice_line_ids": []any{[]any{0, 0, line}},
		"narration": fmt.Sprintf("Donation of %s to campaign: %q. %s",
			strconv.FormatFloat(d.Amount, 'f', -1, 64), c.Title, message),
		"invoice_origin":    "Campaign: " + c.Title,
		"payment_reference": "Campaign: " + c.Title,
	}
	if out.JournalID != 0 {
		payload["journal_id"] = out.JournalID
	}
	if out.PaymentTermID != 0 {
		payload["invoice_payment_term_id"] = out.PaymentTermID
	}

	created, err := s.rpc.Call(ctx, modelInvoice, "create", []any{payload})
	if err != nil {
		return 0, err
	}
	id, ok := createdID(created)
	if !ok {
		return 0, fmt.Errorf("unexpected create result %s", created.GoString())
	}
	log.Printf("[odoo] invoice created: %d", id)
	return id, nil
}

// invoiceRef combines truncated campaign and donor ids for traceability.
// Uniqueness is not enforced remotely.
func invoiceRef(campaignID, donorID string) string {
	return fmt.Sprintf("DONATION-%s-%s", clip(campaignID, 8), clip(donorID, 8))
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// postInvoice walks the draft-to-posted fallback chain. Success at any
// level stops the chain; exhausting it leaves the invoice in draft, which
// is not fatal to the sync.
func (s *Service) postInvoice(ctx context.Context, invoiceID int64) PostingLevel {
	ids := []any{invoiceID}

	if _, err := s.rpc.Call(ctx, modelInvoice, "action_post", []any{ids}); err == nil {
		return PostAction
	} else {
		log.Printf("[odoo] action_post failed for invoice %d, trying direct state write: %v", invoiceID, err)
	}

	if _, err := s.rpc.Call(ctx, modelInvoice, "write", []any{ids, map[string]any{
		"state":         "posted",
		"posted_before": true,
	}}); err == nil {
		return PostStateWrite
	} else {
		log.Printf("[odoo] state write failed for invoice %d, trying state alone: %v", invoiceID, err)
	}

	if _, err := s.rpc.Call(ctx, modelInvoice, "write", []any{ids, map[string]any{
		"state": "posted",
	}}); err == nil {
		return PostStateOnly
	} else {
		log.Printf("[odoo] invoice %d remains draft: %v", invoiceID, err)
	}

	return PostNone
}

// applyNumber writes the custom invoice number after posting (or after the
// posting attempts are exhausted; creation already succeeded, so the caller
// still needs a usable document).
func (s *Service) applyNumber(ctx context.Context, invoiceID int64, number string) bool {
	_, err := s.rpc.Call(ctx, modelInvoice, "write", []any{
		[]any{invoiceID},
		map[string]any{"name": number},
	})
	if err != nil {
		log.Printf("[odoo] could not apply invoice number %s to %d: %v", number, invoiceID, err)
		return false
	}
	return true
}
