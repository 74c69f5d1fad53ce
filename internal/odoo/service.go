// Package odoo synthesizes customer invoices in an Odoo instance for
// incoming donations. Each donation is pushed as a draft account.move,
// posted, and stamped with a human-readable sequential number. The whole
// flow is best-effort: a donation is never failed or rolled back because
// its invoice could not be created.
package odoo

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dittorahmat/amal-kita/internal/donation"
	"github.com/dittorahmat/amal-kita/internal/xmlrpc"
)

// Remote model names. Opaque identifiers; never enumerated or validated
// locally.
const (
	modelPartner     = "res.partner"
	modelProduct     = "product.product"
	modelAccount     = "account.account"
	modelJournal     = "account.journal"
	modelPaymentTerm = "account.payment.term"
	modelInvoice     = "account.move"
)

// donationProductName is the literal the product find-or-create keys on.
const donationProductName = "Donation"

// Caller is the RPC dependency. *xmlrpc.Client satisfies it; tests provide
// a stub.
type Caller interface {
	Authenticate(ctx context.Context) (int64, error)
	Call(ctx context.Context, model, method string, args []any) (xmlrpc.Value, error)
	UID() int64
}

// Sequencer hands out the per-day invoice sequence. dateKey is YYYY-MM-DD.
type Sequencer interface {
	Next(ctx context.Context, dateKey string) (int, error)
}

// Service orchestrates the invoice synthesis pipeline.
type Service struct {
	rpc    Caller
	seq    Sequencer
	prefix string
}

// NewService builds a synthesizer. seq may be nil, in which case the weak
// timestamp-derived sequence fallback is always used.
func NewService(rpc Caller, seq Sequencer, numberPrefix string) *Service {
	if numberPrefix == "" {
		numberPrefix = "ZIS"
	}
	return &Service{rpc: rpc, seq: seq, prefix: numberPrefix}
}

// SyncDonation is the sole public entry point. It resolves or creates the
// partner and product, best-effort resolves accounting metadata, creates
// the invoice, posts it and applies the custom number. It never returns an
// error and never panics out: any fatal failure is logged and lands in
// Outcome.Err with a zero InvoiceID.
func (s *Service) SyncDonation(ctx context.Context, d donation.Donor, c donation.Campaign) Outcome {
	log.Printf("[odoo] starting invoice sync: donor=%s amount=%.0f campaign=%s", d.Name, d.Amount, c.ID)

	out, err := s.run(ctx, d, c)
	if err != nil {
		log.Printf("[odoo] invoice sync failed for donation by %s: %v", d.Name, err)
		out.InvoiceID = 0
		out.Err = err
		return out
	}
	log.Printf("[odoo] invoice %d synced (number=%s posting=%s)", out.InvoiceID, out.Number, out.Posting)
	return out
}

// run performs the sequential pipeline. Steps are strictly ordered: each
// later payload references an id produced by an earlier step.
func (s *Service) run(ctx context.Context, d donation.Donor, c donation.Campaign) (Outcome, error) {
	var out Outcome

	if s.rpc.UID() == 0 {
		if _, err := s.rpc.Authenticate(ctx); err != nil {
			return out, fmt.Errorf("authenticate: %w", err)
		}
	}

	partnerID, err := s.resolvePartner(ctx, d)
	if err != nil {
		return out, fmt.Errorf("resolve partner: %w", err)
	}
	out.PartnerID = partnerID

	productID, err := s.resolveDonationProduct(ctx)
	if err != nil {
		return out, fmt.Errorf("resolve donation product: %w", err)
	}
	out.ProductID = productID

	// Metadata below is best effort only; a missing account, journal or
	// payment term must not stop the invoice.
	out.AccountID, out.AccountStrategy = s.findIncomeAccount(ctx)
	out.JournalID = s.findSaleJournal(ctx)
	out.PaymentTermID = s.findImmediatePaymentTerm(ctx)

	out.Number = s.invoiceNumber(ctx, d)

	invoiceID, err := s.createInvoice(ctx, d, c, out)
	if err != nil {
		return out, fmt.Errorf("create invoice: %w", err)
	}
	out.InvoiceID = invoiceID

	// Posting and numbering failures are absorbed: the invoice id already
	// belongs to the caller.
	out.Posting = s.postInvoice(ctx, invoiceID)
	out.NumberApplied = s.applyNumber(ctx, invoiceID, out.Number)

	return out, nil
}

// invoiceNumber formats PREFIX/YYYY/MM/DD/NNNNN from the donor's timestamp
// (not wall clock). When the sequencer is unavailable the sequence degrades
// to a deterministic value derived from the timestamp and donor id length
// rather than blocking invoice creation.
func (s *Service) invoiceNumber(ctx context.Context, d donation.Donor) string {
	ts := time.UnixMilli(d.Timestamp).UTC()
	seq := 0
	if s.seq != nil {
		n, err := s.seq.Next(ctx, ts.Format("2006-01-02"))
		if err != nil {
			log.Printf("[odoo] sequence generator unavailable, using fallback: %v", err)
		} else {
			seq = n
		}
	}
	if seq <= 0 {
		seq = int((d.Timestamp/1000)+int64(len(d.ID))) % 100000
	}
	return fmt.Sprintf("%s/%s/%05d", s.prefix, ts.Format("2006/01/02"), seq)
}

// search runs a single-domain search on a model and returns the id list.
func (s *Service) search(ctx context.Context, model string, domain []any) (xmlrpc.Value, error) {
	return s.rpc.Call(ctx, model, "search", []any{domain})
}

// firstID extracts the leading record id from a search result. An empty
// array means not-found, never an error.
func firstID(v xmlrpc.Value) (int64, bool) {
	if v.Kind() != xmlrpc.KindArray {
		return 0, false
	}
	items := v.Items()
	if len(items) == 0 || items[0].Kind() != xmlrpc.KindInt {
		return 0, false
	}
	return items[0].Int(), true
}

// createdID extracts the new record id from a create result.
func createdID(v xmlrpc.Value) (int64, bool) {
	if v.Kind() != xmlrpc.KindInt || v.Int() <= 0 {
		return 0, false
	}
	return v.Int(), true
}

func cond(field, op string, value any) []any { return []any{field, op, value} }
