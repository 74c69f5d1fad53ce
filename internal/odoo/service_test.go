package odoo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittorahmat/amal-kita/internal/donation"
	"github.com/dittorahmat/amal-kita/internal/xmlrpc"
)

type recordedCall struct {
	model  string
	method string
	args   []any
}

// stubOdoo is an in-memory stand-in for the remote system. It honors the
// search/create contract per model and lets tests inject failures at each
// pipeline step.
type stubOdoo struct {
	uid     int64
	authErr error

	nextID   int64
	partners map[string]int64
	products map[string]int64

	accountSearch func(domain []any) (xmlrpc.Value, error)

	saleJournals   []int64
	otherJournals  []int64
	immediateTerms []int64
	otherTerms     []int64

	postErr       error // action_post
	stateWriteErr error // write with state+posted_before
	stateOnlyErr  error // write with state alone

	calls []recordedCall
}

func newStubOdoo() *stubOdoo {
	return &stubOdoo{
		nextID:   100,
		partners: map[string]int64{},
		products: map[string]int64{},
	}
}

func (f *stubOdoo) Authenticate(ctx context.Context) (int64, error) {
	if f.authErr != nil {
		return 0, f.authErr
	}
	f.uid = 7
	return f.uid, nil
}

func (f *stubOdoo) UID() int64 { return f.uid }

func (f *stubOdoo) alloc() int64 {
	f.nextID++
	return f.nextID
}

func (f *stubOdoo) countCalls(model, method string) int {
	n := 0
	for _, c := range f.calls {
		if c.model == model && c.method == method {
			n++
		}
	}
	return n
}

func (f *stubOdoo) lastCreatePayload(model string) map[string]any {
	for i := len(f.calls) - 1; i >= 0; i-- {
		c := f.calls[i]
		if c.model == model && c.method == "create" {
			return c.args[0].(map[string]any)
		}
	}
	return nil
}

func domainField(domain []any) (field string, value any) {
	if len(domain) == 0 {
		return "", nil
	}
	cond := domain[0].([]any)
	return cond[0].(string), cond[2]
}

func (f *stubOdoo) Call(ctx context.Context, model, method string, args []any) (xmlrpc.Value, error) {
	f.calls = append(f.calls, recordedCall{model: model, method: method, args: args})

	switch model {
	case modelPartner:
		return f.findOrCreate(f.partners, method, args)
	case modelProduct:
		return f.findOrCreate(f.products, method, args)
	case modelAccount:
		if f.accountSearch != nil {
			return f.accountSearch(args[0].([]any))
		}
		return xmlrpc.Array(), nil
	case modelJournal:
		return f.searchSplit(args, f.saleJournals, f.otherJournals), nil
	case modelPaymentTerm:
		return f.searchSplit(args, f.immediateTerms, f.otherTerms), nil
	case modelInvoice:
		return f.invoiceCall(method, args)
	}
	return xmlrpc.Nil(), fmt.Errorf("unexpected model %s", model)
}

func (f *stubOdoo) findOrCreate(store map[string]int64, method string, args []any) (xmlrpc.Value, error) {
	switch method {
	case "search":
		_, name := domainField(args[0].([]any))
		if id, ok := store[name.(string)]; ok {
			return xmlrpc.Array(xmlrpc.Int(id)), nil
		}
		return xmlrpc.Array(), nil
	case "create":
		payload := args[0].(map[string]any)
		id := f.alloc()
		store[payload["name"].(string)] = id
		return xmlrpc.Int(id), nil
	}
	return xmlrpc.Nil(), fmt.Errorf("unexpected method %s", method)
}

func (f *stubOdoo) invoiceCall(method string, args []any) (xmlrpc.Value, error) {
	switch method {
	case "create":
		return xmlrpc.Int(f.alloc()), nil
	case "action_post":
		if f.postErr != nil {
			return xmlrpc.Nil(), f.postErr
		}
		return xmlrpc.Bool(true), nil
	case "write":
		payload := args[1].(map[string]any)
		if _, hasState := payload["state"]; hasState {
			if _, hasPostedBefore := payload["posted_before"]; hasPostedBefore {
				if f.stateWriteErr != nil {
					return xmlrpc.Nil(), f.stateWriteErr
				}
			} else if f.stateOnlyErr != nil {
				return xmlrpc.Nil(), f.stateOnlyErr
			}
		}
		return xmlrpc.Bool(true), nil
	}
	return xmlrpc.Nil(), fmt.Errorf("unexpected method %s", method)
}

// searchSplit answers the filtered query (type=sale, name =ilike
// %immediate%) with only the matching records and the unfiltered fallback
// query with everything.
func (f *stubOdoo) searchSplit(args []any, matching, rest []int64) xmlrpc.Value {
	if len(args[0].([]any)) == 0 {
		all := append(append([]int64{}, matching...), rest...)
		return idsValue(all)
	}
	return idsValue(matching)
}

func idsValue(ids []int64) xmlrpc.Value {
	vs := make([]xmlrpc.Value, len(ids))
	for i, id := range ids {
		vs[i] = xmlrpc.Int(id)
	}
	return xmlrpc.Array(vs...)
}

type fixedSequence struct {
	n   int
	err error
}

func (s fixedSequence) Next(ctx context.Context, dateKey string) (int, error) {
	return s.n, s.err
}

var testTimestamp = time.Date(2024, 8, 1, 10, 30, 0, 0, time.UTC).UnixMilli()

func testDonor() donation.Donor {
	return donation.Donor{
		ID:        "donor_abcdef12",
		Name:      "Ahmad S.",
		Amount:    50000,
		Timestamp: testTimestamp,
	}
}

func testCampaign() donation.Campaign {
	return donation.Campaign{ID: "camp_12345678", Title: "Bantu Sekolah"}
}

func TestSyncDonationEndToEnd(t *testing.T) {
	stub := newStubOdoo()
	svc := NewService(stub, fixedSequence{n: 7}, "ZIS")

	out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())

	require.NoError(t, out.Err)
	require.True(t, out.Created())

	assert.Equal(t, 1, stub.countCalls(modelPartner, "create"))
	assert.Equal(t, 1, stub.countCalls(modelProduct, "create"))
	assert.Equal(t, 1, stub.countCalls(modelInvoice, "create"))

	partner := stub.lastCreatePayload(modelPartner)
	assert.Equal(t, "Ahmad S.", partner["name"])

	product := stub.lastCreatePayload(modelProduct)
	assert.Equal(t, "Donation", product["name"])
	assert.Equal(t, "service", product["type"])

	invoice := stub.lastCreatePayload(modelInvoice)
	assert.Equal(t, "out_invoice", invoice["move_type"])
	assert.Equal(t, out.PartnerID, invoice["partner_id"])
	assert.Contains(t, invoice["ref"], "camp_123")
	assert.Contains(t, invoice["ref"], "donor_ab")
	assert.Equal(t, "2024-08-01", invoice["invoice_date"])

	line := invoice["invoice_line_ids"].([]any)[0].([]any)[2].(map[string]any)
	assert.Equal(t, float64(50000), line["price_unit"])
	assert.Equal(t, out.ProductID, line["product_id"])

	// The stub's last allocated id belongs to the invoice.
	assert.Equal(t, stub.nextID, out.InvoiceID)
	assert.Equal(t, PostAction, out.Posting)
	assert.True(t, out.NumberApplied)
}

func TestSyncDonationIdempotentResolution(t *testing.T) {
	stub := newStubOdoo()
	svc := NewService(stub, fixedSequence{n: 1}, "ZIS")

	first := svc.SyncDonation(context.Background(), testDonor(), testCampaign())
	second := svc.SyncDonation(context.Background(), testDonor(), testCampaign())

	require.True(t, first.Created())
	require.True(t, second.Created())
	assert.Equal(t, first.PartnerID, second.PartnerID)
	assert.Equal(t, first.ProductID, second.ProductID)

	// Second run finds what the first created: no second create call.
	assert.Equal(t, 1, stub.countCalls(modelPartner, "create"))
	assert.Equal(t, 1, stub.countCalls(modelProduct, "create"))
	assert.Equal(t, 2, stub.countCalls(modelInvoice, "create"))
}

func TestSyncDonationSchemaVarianceTolerance(t *testing.T) {
	stub := newStubOdoo()
	stub.accountSearch = func(domain []any) (xmlrpc.Value, error) {
		field, _ := domainField(domain)
		return xmlrpc.Nil(), &xmlrpc.Fault{Code: 3, Message: "Invalid field " + field}
	}
	svc := NewService(stub, fixedSequence{n: 1}, "ZIS")

	out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())

	require.NoError(t, out.Err)
	require.True(t, out.Created())
	assert.Zero(t, out.AccountID)
	assert.Equal(t, AccountNone, out.AccountStrategy)

	line := stub.lastCreatePayload(modelInvoice)["invoice_line_ids"].([]any)[0].([]any)[2].(map[string]any)
	_, hasAccount := line["account_id"]
	assert.False(t, hasAccount)
}

func TestSyncDonationAccountStrategyOrder(t *testing.T) {
	stub := newStubOdoo()
	stub.accountSearch = func(domain []any) (xmlrpc.Value, error) {
		field, value := domainField(domain)
		// First strategy errors, second matches; the rest must not run.
		if field == "account_type" && value == "income" {
			return xmlrpc.Nil(), &xmlrpc.Fault{Code: 3, Message: "Invalid field account_type"}
		}
		if field == "code" {
			return xmlrpc.Array(xmlrpc.Int(4001)), nil
		}
		return xmlrpc.Array(), nil
	}
	svc := NewService(stub, fixedSequence{n: 1}, "ZIS")

	out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())

	require.True(t, out.Created())
	assert.Equal(t, int64(4001), out.AccountID)
	assert.Equal(t, AccountByCodePrefix, out.AccountStrategy)

	line := stub.lastCreatePayload(modelInvoice)["invoice_line_ids"].([]any)[0].([]any)[2].(map[string]any)
	assert.Equal(t, int64(4001), line["account_id"])
}

func TestSyncDonationPrefersSaleJournalAndImmediateTerm(t *testing.T) {
	stub := newStubOdoo()
	stub.saleJournals = []int64{21}
	stub.otherJournals = []int64{22}
	stub.immediateTerms = []int64{41}
	stub.otherTerms = []int64{42}
	svc := NewService(stub, fixedSequence{n: 1}, "ZIS")

	out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())

	require.True(t, out.Created())
	assert.Equal(t, int64(21), out.JournalID)
	assert.Equal(t, int64(41), out.PaymentTermID)

	// The typed search matched, so no unfiltered fallback query runs.
	assert.Equal(t, 1, stub.countCalls(modelJournal, "search"))
	assert.Equal(t, 1, stub.countCalls(modelPaymentTerm, "search"))

	invoice := stub.lastCreatePayload(modelInvoice)
	assert.Equal(t, int64(21), invoice["journal_id"])
	assert.Equal(t, int64(41), invoice["invoice_payment_term_id"])
}

func TestSyncDonationJournalAndTermFallBackToAnyRecord(t *testing.T) {
	stub := newStubOdoo()
	stub.otherJournals = []int64{31}
	stub.otherTerms = []int64{52}
	svc := NewService(stub, fixedSequence{n: 1}, "ZIS")

	out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())

	require.True(t, out.Created())
	assert.Equal(t, int64(31), out.JournalID)
	assert.Equal(t, int64(52), out.PaymentTermID)

	// No sale journal and no immediate term: both lookups ran the typed
	// search first, then the unfiltered one.
	assert.Equal(t, 2, stub.countCalls(modelJournal, "search"))
	assert.Equal(t, 2, stub.countCalls(modelPaymentTerm, "search"))
}

func TestSyncDonationAuthFailureReturnsEmptyOutcome(t *testing.T) {
	stub := newStubOdoo()
	stub.authErr = &xmlrpc.TransportError{Err: errors.New("dial tcp 127.0.0.1:8069: connect: connection refused")}
	svc := NewService(stub, fixedSequence{n: 1}, "ZIS")

	out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())

	assert.False(t, out.Created())
	assert.Zero(t, out.InvoiceID)
	require.Error(t, out.Err)
	var te *xmlrpc.TransportError
	assert.ErrorAs(t, out.Err, &te)
	assert.Zero(t, stub.countCalls(modelInvoice, "create"))
}

func TestSyncDonationPostingFallbackChain(t *testing.T) {
	t.Run("primary post succeeds", func(t *testing.T) {
		stub := newStubOdoo()
		svc := NewService(stub, fixedSequence{n: 1}, "ZIS")
		out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())
		assert.Equal(t, PostAction, out.Posting)
	})

	t.Run("falls back to state write", func(t *testing.T) {
		stub := newStubOdoo()
		stub.postErr = &xmlrpc.Fault{Code: 1, Message: "action_post not allowed"}
		svc := NewService(stub, fixedSequence{n: 1}, "ZIS")
		out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())
		require.True(t, out.Created())
		assert.Equal(t, PostStateWrite, out.Posting)
	})

	t.Run("falls back to state-only write", func(t *testing.T) {
		stub := newStubOdoo()
		stub.postErr = &xmlrpc.Fault{Code: 1, Message: "nope"}
		stub.stateWriteErr = &xmlrpc.Fault{Code: 3, Message: "Invalid field posted_before"}
		svc := NewService(stub, fixedSequence{n: 1}, "ZIS")
		out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())
		require.True(t, out.Created())
		assert.Equal(t, PostStateOnly, out.Posting)
	})

	t.Run("all posting attempts fail, invoice id survives", func(t *testing.T) {
		stub := newStubOdoo()
		stub.postErr = &xmlrpc.Fault{Code: 1, Message: "nope"}
		stub.stateWriteErr = &xmlrpc.Fault{Code: 1, Message: "nope"}
		stub.stateOnlyErr = &xmlrpc.Fault{Code: 1, Message: "nope"}
		svc := NewService(stub, fixedSequence{n: 1}, "ZIS")
		out := svc.SyncDonation(context.Background(), testDonor(), testCampaign())
		require.NoError(t, out.Err)
		assert.True(t, out.Created())
		assert.Equal(t, PostNone, out.Posting)
		// Number write still happens after the exhausted chain.
		assert.True(t, out.NumberApplied)
	})
}

func TestInvoiceNumberFormat(t *testing.T) {
	svc := NewService(newStubOdoo(), fixedSequence{n: 7}, "ZIS")
	d := testDonor()
	got := svc.invoiceNumber(context.Background(), d)
	assert.Equal(t, "ZIS/2024/08/01/00007", got)
}

func TestInvoiceNumberSequencerFallback(t *testing.T) {
	svc := NewService(newStubOdoo(), fixedSequence{err: errors.New("sequence store down")}, "ZIS")
	d := testDonor()

	first := svc.invoiceNumber(context.Background(), d)
	second := svc.invoiceNumber(context.Background(), d)

	// Deterministic, shaped like the real thing, never blocks creation.
	assert.Equal(t, first, second)
	assert.Regexp(t, `^ZIS/2024/08/01/\d{5}$`, first)
}

func TestInvoiceNumberNilSequencer(t *testing.T) {
	svc := NewService(newStubOdoo(), nil, "")
	got := svc.invoiceNumber(context.Background(), testDonor())
	assert.Regexp(t, `^ZIS/2024/08/01/\d{5}$`, got)
}

func TestInvoiceRef(t *testing.T) {
	assert.Equal(t, "DONATION-camp_123-donor_ab", invoiceRef("camp_12345678", "donor_abcdef12"))
	assert.Equal(t, "DONATION-c1-d2", invoiceRef("c1", "d2"))
}
