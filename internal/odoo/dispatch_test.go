package odoo

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dittorahmat/amal-kita/internal/donation"
	"github.com/dittorahmat/amal-kita/internal/events"
	"github.com/dittorahmat/amal-kita/internal/xmlrpc"
)

type recordingStore struct {
	mu     sync.Mutex
	synced map[string]string // donation id -> invoice number
	failed map[string]string // donation id -> reason
}

func newRecordingStore() *recordingStore {
	return &recordingStore{synced: map[string]string{}, failed: map[string]string{}}
}

func (s *recordingStore) MarkDonationSynced(_ context.Context, donationID string, _ int64, invoiceNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.synced[donationID] = invoiceNumber
	return nil
}

func (s *recordingStore) MarkDonationSyncFailed(_ context.Context, donationID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[donationID] = reason
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, _ string, evt events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, evt)
	return nil
}

func (p *recordingPublisher) byType(eventType string) []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Envelope
	for _, e := range p.envelopes {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testDonation(id string) donation.Donation {
	d := donation.Donation{ID: id, CampaignID: testCampaign().ID, CreatedAt: testTimestamp}
	d.Donor = testDonor()
	d.Donor.ID = id
	return d
}

// Concurrent dispatches must not share a synthesizer: every run gets its
// own client and session cache, so goroutines never touch the same uid.
func TestDispatcherBuildsFreshServicePerRun(t *testing.T) {
	var mu sync.Mutex
	var stubs []*stubOdoo
	factory := func() *Service {
		stub := newStubOdoo()
		mu.Lock()
		stubs = append(stubs, stub)
		mu.Unlock()
		return NewService(stub, fixedSequence{n: 1}, "ZIS")
	}
	dp := &Dispatcher{NewService: factory, Store: newRecordingStore()}

	const runs = 4
	var wg sync.WaitGroup
	outcomes := make([]Outcome, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = dp.Run(context.Background(), testDonation("don_conc"+string(rune('0'+i))), testCampaign())
		}(i)
	}
	wg.Wait()

	require.Len(t, stubs, runs)
	seen := map[*stubOdoo]bool{}
	for _, stub := range stubs {
		assert.False(t, seen[stub], "synthesizer reused across runs")
		seen[stub] = true
		// Each run authenticated on its own client.
		assert.Equal(t, int64(7), stub.uid)
	}
	for _, out := range outcomes {
		assert.True(t, out.Created())
	}
}

func TestDispatcherRecordsSuccess(t *testing.T) {
	store := newRecordingStore()
	pub := &recordingPublisher{}
	dp := &Dispatcher{
		NewService: func() *Service { return NewService(newStubOdoo(), fixedSequence{n: 7}, "ZIS") },
		Store:      store,
		Producer:   pub,
		Topic:      "donations.v1",
	}

	out := dp.Run(context.Background(), testDonation("don_ok1"), testCampaign())

	require.True(t, out.Created())
	assert.Equal(t, "ZIS/2024/08/01/00007", store.synced["don_ok1"])
	require.Len(t, pub.byType(events.InvoiceSynced), 1)
	assert.Empty(t, pub.byType(events.InvoiceSyncFailed))
}

func TestDispatcherRecordsFailure(t *testing.T) {
	store := newRecordingStore()
	pub := &recordingPublisher{}
	dp := &Dispatcher{
		NewService: func() *Service {
			stub := newStubOdoo()
			stub.authErr = &xmlrpc.TransportError{Err: context.DeadlineExceeded}
			return NewService(stub, fixedSequence{n: 1}, "ZIS")
		},
		Store:    store,
		Producer: pub,
		Topic:    "donations.v1",
	}

	out := dp.Run(context.Background(), testDonation("don_bad1"), testCampaign())

	assert.False(t, out.Created())
	assert.NotEmpty(t, store.failed["don_bad1"])
	require.Len(t, pub.byType(events.InvoiceSyncFailed), 1)
	assert.Empty(t, pub.byType(events.InvoiceSynced))
}
