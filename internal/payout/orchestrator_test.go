package payout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
	"github.com/tamfolio/treegar-orchestration-service/internal/store"
	"github.com/tamfolio/treegar-orchestration-service/pkg/meridianclient"
)

type repoStub struct {
	store.Repository
	mu            sync.Mutex
	statuses      []domain.IntentStatus
	beneficiaries []domain.Beneficiary
}

func (s *repoStub) UpdateIntentStatus(ctx context.Context, intentID uuid.UUID, status domain.IntentStatus, reference, failureReason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *repoStub) SaveBeneficiary(ctx context.Context, beneficiary *domain.Beneficiary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beneficiaries = append(s.beneficiaries, *beneficiary)
	return nil
}

type cacheStub struct {
	mu            sync.Mutex
	balanceCalls  int
	recentCalls   int
	lastUserID    uuid.UUID
}

func (c *cacheStub) InvalidateBalance(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balanceCalls++
	c.lastUserID = userID
	return nil
}

func (c *cacheStub) InvalidateRecentTransactions(ctx context.Context, userID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentCalls++
	c.lastUserID = userID
	return nil
}

type producerStub struct {
	mu        sync.Mutex
	events    []string
	exchanges []string
}

func (p *producerStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	p.exchanges = append(p.exchanges, exchange)
	return nil
}

func (p *producerStub) Close() {}

func resolvedItem(amount int64) domain.TransferLineItem {
	return domain.TransferLineItem{
		ID:            uuid.New(),
		BankID:        "bank_044",
		AccountNumber: "0123456789",
		Amount:        amount,
		Narration:     "rent",
		Resolution: domain.ResolutionState{
			Phase:       domain.ResolutionResolved,
			AccountName: "ADAEZE OKONKWO",
		},
	}
}

func singleIntent(item domain.TransferLineItem) *domain.TransactionIntent {
	return &domain.TransactionIntent{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Kind:   domain.DraftSingle,
		Items:  []domain.TransferLineItem{item},
		Status: domain.IntentPendingAuthorization,
	}
}

func TestValidateAttachesErrorsToOffendingItemsOnly(t *testing.T) {
	itemA := resolvedItem(500000)
	itemB := resolvedItem(200000)
	itemB.Resolution = domain.ResolutionState{Phase: domain.ResolutionFailed, FailureReason: "account not found"}
	itemC := resolvedItem(100000)
	itemC.Resolution = domain.Unresolved()

	intent := &domain.TransactionIntent{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Kind:   domain.DraftBulk,
		Items:  []domain.TransferLineItem{itemA, itemB, itemC},
	}

	o := NewOrchestrator(&repoStub{}, nil, nil, nil, "")
	err := o.Validate(intent)

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Validate = %v, want ValidationError", err)
	}
	if len(vErr.Items) != 2 {
		t.Fatalf("expected errors on 2 items, got %d", len(vErr.Items))
	}
	if _, ok := vErr.Items[itemA.ID]; ok {
		t.Fatal("clean item A carries a validation error")
	}
	for _, id := range []uuid.UUID{itemB.ID, itemC.ID} {
		fields, ok := vErr.Items[id]
		if !ok {
			t.Fatalf("expected validation error for item %s", id)
		}
		if _, ok := fields["account"]; !ok {
			t.Fatalf("expected account error for item %s, got %v", id, fields)
		}
	}
	// Item A's resolved state is untouched by validation of its siblings.
	if intent.Items[0].Resolution.Phase != domain.ResolutionResolved {
		t.Fatalf("item A resolution disturbed: %q", intent.Items[0].Resolution.Phase)
	}
}

func TestValidateFieldRules(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*domain.TransferLineItem)
		wantField string
	}{
		{"missing narration", func(i *domain.TransferLineItem) { i.Narration = "" }, "narration"},
		{"zero amount", func(i *domain.TransferLineItem) { i.Amount = 0 }, "amount"},
		{"negative amount", func(i *domain.TransferLineItem) { i.Amount = -100 }, "amount"},
		{"still resolving", func(i *domain.TransferLineItem) { i.Resolution.Phase = domain.ResolutionResolving }, "account"},
	}

	o := NewOrchestrator(&repoStub{}, nil, nil, nil, "")
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			item := resolvedItem(500000)
			tc.mutate(&item)
			err := o.Validate(singleIntent(item))
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate = %v, want ValidationError", err)
			}
			if _, ok := vErr.Items[item.ID][tc.wantField]; !ok {
				t.Fatalf("expected %q field error, got %v", tc.wantField, vErr.Items[item.ID])
			}
		})
	}
}

func TestSubmitRejectsLocallyWithoutNetworkCall(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	item := resolvedItem(500000)
	item.Narration = ""
	o := NewOrchestrator(&repoStub{}, meridianclient.NewClient(server.URL, "test-key"), &cacheStub{}, &producerStub{}, "")

	err := o.Submit(context.Background(), singleIntent(item), "1234")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Submit = %v, want ValidationError", err)
	}
	if requests != 0 {
		t.Fatalf("invalid intent reached the network: %d request(s)", requests)
	}
}

func TestSubmitSingleSettles(t *testing.T) {
	var gotPath string
	var gotReq meridianclient.PayoutRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode payout request: %v", err)
		}
		var resp meridianclient.PayoutResponse
		resp.Data.ID = "po_123"
		resp.Data.Attributes.Reference = "ref_abc"
		resp.Data.Attributes.Status = "completed"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	repo := &repoStub{}
	cache := &cacheStub{}
	producer := &producerStub{}
	o := NewOrchestrator(repo, meridianclient.NewClient(server.URL, "test-key"), cache, producer, "")

	item := resolvedItem(500000)
	item.SaveBeneficiary = true
	intent := singleIntent(item)

	if err := o.Submit(context.Background(), intent, "1234"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if gotPath != "/api/v1/payouts" {
		t.Fatalf("single payout hit %q, want /api/v1/payouts", gotPath)
	}
	if gotReq.Data.Attributes.TransactionPIN != "1234" {
		t.Fatal("transaction pin not attached to submission")
	}
	if gotReq.Data.Attributes.Item.Amount != 500000 {
		t.Fatalf("amount = %d, want 500000", gotReq.Data.Attributes.Item.Amount)
	}

	if intent.Status != domain.IntentSettled || intent.Reference != "ref_abc" {
		t.Fatalf("intent not settled: status=%q reference=%q", intent.Status, intent.Reference)
	}
	if cache.balanceCalls != 1 || cache.recentCalls != 1 {
		t.Fatalf("cache invalidation: balance=%d recent=%d, want 1 each", cache.balanceCalls, cache.recentCalls)
	}
	if cache.lastUserID != intent.UserID {
		t.Fatalf("cache invalidated for %s, want %s", cache.lastUserID, intent.UserID)
	}
	if len(repo.beneficiaries) != 1 {
		t.Fatalf("expected 1 saved beneficiary, got %d", len(repo.beneficiaries))
	}
	if b := repo.beneficiaries[0]; b.AccountNumberMasked != "******6789" || b.AccountName != "ADAEZE OKONKWO" {
		t.Fatalf("unexpected beneficiary: %+v", b)
	}

	wantEvents := []string{"payout.intent.submitted", "payout.intent.settled"}
	if len(producer.events) != len(wantEvents) {
		t.Fatalf("events = %v, want %v", producer.events, wantEvents)
	}
	for i := range wantEvents {
		if producer.events[i] != wantEvents[i] {
			t.Fatalf("events = %v, want %v", producer.events, wantEvents)
		}
	}
}

func TestSubmitPublishesToConfiguredExchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp meridianclient.PayoutResponse
		resp.Data.Attributes.Reference = "ref_abc"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	producer := &producerStub{}
	o := NewOrchestrator(&repoStub{}, meridianclient.NewClient(server.URL, "test-key"), &cacheStub{}, producer, "treegar.staging.events")

	if err := o.Submit(context.Background(), singleIntent(resolvedItem(500000)), "1234"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(producer.exchanges) == 0 {
		t.Fatal("no events published")
	}
	for _, exchange := range producer.exchanges {
		if exchange != "treegar.staging.events" {
			t.Fatalf("event published to %q, want treegar.staging.events", exchange)
		}
	}
}

func TestSubmitBulkUsesBulkOperation(t *testing.T) {
	var gotPath string
	var gotReq meridianclient.BulkPayoutRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode bulk payout request: %v", err)
		}
		var resp meridianclient.PayoutResponse
		resp.Data.Attributes.Reference = "ref_bulk"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	o := NewOrchestrator(&repoStub{}, meridianclient.NewClient(server.URL, "test-key"), &cacheStub{}, &producerStub{}, "")
	intent := &domain.TransactionIntent{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Kind:      domain.DraftBulk,
		GroupName: "march salaries",
		Items:     []domain.TransferLineItem{resolvedItem(500000), resolvedItem(700000)},
		Status:    domain.IntentPendingAuthorization,
	}

	if err := o.Submit(context.Background(), intent, "1234"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if gotPath != "/api/v1/payouts/bulk" {
		t.Fatalf("bulk payout hit %q, want /api/v1/payouts/bulk", gotPath)
	}
	if gotReq.Data.Attributes.GroupName != "march salaries" {
		t.Fatalf("group name = %q", gotReq.Data.Attributes.GroupName)
	}
	if len(gotReq.Data.Attributes.Items) != 2 {
		t.Fatalf("bulk items = %d, want 2", len(gotReq.Data.Attributes.Items))
	}
}

func TestSubmitPinRejectionKeepsIntentPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors":[{"title":"PIN_REJECTED","detail":"incorrect transaction pin","status":"403"}]}`))
	}))
	defer server.Close()

	repo := &repoStub{}
	cache := &cacheStub{}
	producer := &producerStub{}
	o := NewOrchestrator(repo, meridianclient.NewClient(server.URL, "test-key"), cache, producer, "")
	intent := singleIntent(resolvedItem(500000))

	err := o.Submit(context.Background(), intent, "0000")
	if !errors.Is(err, ErrPinRejected) {
		t.Fatalf("Submit = %v, want ErrPinRejected", err)
	}
	if intent.Status != domain.IntentPendingAuthorization {
		t.Fatalf("intent status = %q, want pending_authorization for retry", intent.Status)
	}
	if cache.balanceCalls != 0 || cache.recentCalls != 0 {
		t.Fatal("caches invalidated on a rejected pin")
	}
	for _, ev := range producer.events {
		if ev == "payout.intent.failed" || ev == "payout.intent.settled" {
			t.Fatalf("unexpected terminal event %q on pin rejection", ev)
		}
	}
}

func TestSubmitFailureIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"errors":[{"title":"INSUFFICIENT_FUNDS","detail":"balance too low","status":"422"}]}`))
	}))
	defer server.Close()

	repo := &repoStub{}
	producer := &producerStub{}
	o := NewOrchestrator(repo, meridianclient.NewClient(server.URL, "test-key"), &cacheStub{}, producer, "")
	intent := singleIntent(resolvedItem(500000))

	err := o.Submit(context.Background(), intent, "1234")
	if err == nil || errors.Is(err, ErrPinRejected) {
		t.Fatalf("Submit = %v, want terminal submission error", err)
	}
	if intent.Status != domain.IntentFailed || intent.FailureReason == "" {
		t.Fatalf("intent not failed: status=%q reason=%q", intent.Status, intent.FailureReason)
	}
	last := producer.events[len(producer.events)-1]
	if last != "payout.intent.failed" {
		t.Fatalf("last event = %q, want payout.intent.failed", last)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		display string
		want    int64
		wantErr bool
	}{
		{"1,500.50", 150050, false},
		{"1500", 150000, false},
		{"₦2,000", 200000, false},
		{" 250.5 ", 25050, false},
		{"0.01", 1, false},
		{"", 0, true},
		{"12.345", 0, true},
		{"ten", 0, true},
		{"1,5x0", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseAmount(tc.display)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAmount(%q) = %d, want error", tc.display, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAmount(%q) failed: %v", tc.display, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tc.display, got, tc.want)
		}
	}
}
