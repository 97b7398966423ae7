package lifecycle

import (
	"testing"
	"time"

	"github.com/openfloor/tradedesk/internal/domain"
)

var (
	testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	trader  = domain.Actor{ID: "trader-1", Name: "Ana"}
	other   = domain.Actor{ID: "trader-2", Name: "Bram"}
	manager = domain.Actor{ID: "mgr-1", Name: "Kim", IsManager: true}
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name       string
		status     domain.PositionStatus
		target     domain.PositionStatus
		actor      domain.Actor
		wantStatus domain.PositionStatus
		wantPerm   bool
		wantTrans  bool
	}{
		{
			name:       "manager approves pending",
			status:     domain.StatusPending,
			target:     domain.StatusApproved,
			actor:      manager,
			wantStatus: domain.StatusApproved,
		},
		{
			name:     "trader cannot approve",
			status:   domain.StatusPending,
			target:   domain.StatusApproved,
			actor:    trader,
			wantPerm: true,
		},
		{
			name:      "approve only from pending",
			status:    domain.StatusOrderPlaced,
			target:    domain.StatusApproved,
			actor:     manager,
			wantTrans: true,
		},
		{
			name:       "order placed from approved",
			status:     domain.StatusApproved,
			target:     domain.StatusOrderPlaced,
			actor:      trader,
			wantStatus: domain.StatusOrderPlaced,
		},
		{
			name:      "order placed needs approval first",
			status:    domain.StatusPending,
			target:    domain.StatusOrderPlaced,
			actor:     trader,
			wantTrans: true,
		},
		{
			name:       "fills received from order placed",
			status:     domain.StatusOrderPlaced,
			target:     domain.StatusFillsReceived,
			actor:      trader,
			wantStatus: domain.StatusFillsReceived,
		},
		{
			name:       "fills received from partial",
			status:     domain.StatusPartialFillsReceived,
			target:     domain.StatusFillsReceived,
			actor:      trader,
			wantStatus: domain.StatusFillsReceived,
		},
		{
			name:      "fills received skips order placement",
			status:    domain.StatusApproved,
			target:    domain.StatusFillsReceived,
			actor:     trader,
			wantTrans: true,
		},
		{
			name:       "manager resets to pending",
			status:     domain.StatusFillsReceived,
			target:     domain.StatusPending,
			actor:      manager,
			wantStatus: domain.StatusPending,
		},
		{
			name:     "trader cannot reset",
			status:   domain.StatusFillsReceived,
			target:   domain.StatusPending,
			actor:    trader,
			wantPerm: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.Position{TraderID: trader.ID, Status: tt.status}
			err := Transition(&p, tt.target, tt.actor, testNow)
			switch {
			case tt.wantPerm:
				if !domain.IsPermission(err) {
					t.Fatalf("expected PermissionError, got %v", err)
				}
				if p.Status != tt.status {
					t.Errorf("status mutated to %q on error", p.Status)
				}
			case tt.wantTrans:
				if !domain.IsInvalidTransition(err) {
					t.Fatalf("expected InvalidTransitionError, got %v", err)
				}
				if p.Status != tt.status {
					t.Errorf("status mutated to %q on error", p.Status)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Status != tt.wantStatus {
					t.Errorf("status = %q, want %q", p.Status, tt.wantStatus)
				}
			}
		})
	}
}

func TestTransitionUnknownStatus(t *testing.T) {
	p := domain.Position{Status: domain.StatusPending}
	err := Transition(&p, domain.PositionStatus("liquidated"), manager, testNow)
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTransitionTimestampsSticky(t *testing.T) {
	p := domain.Position{TraderID: trader.ID, Status: domain.StatusPending}

	if err := Transition(&p, domain.StatusApproved, manager, testNow); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if p.ApprovedAt == nil || !p.ApprovedAt.Equal(testNow) {
		t.Fatalf("approved_at = %v, want %v", p.ApprovedAt, testNow)
	}
	if p.ApprovedBy != manager.ID {
		t.Fatalf("approved_by = %q, want %q", p.ApprovedBy, manager.ID)
	}
	if err := Transition(&p, domain.StatusOrderPlaced, trader, testNow); err != nil {
		t.Fatalf("place order: %v", err)
	}

	// Reset clears forward progress, then re-approval stamps fresh.
	if err := Transition(&p, domain.StatusPending, manager, testNow); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if p.ApprovedAt != nil || p.OrderPlacedAt != nil || p.FillsReceivedAt != nil || p.ApprovedBy != "" {
		t.Fatal("reset left forward timestamps in place")
	}

	later := testNow.Add(2 * time.Hour)
	if err := Transition(&p, domain.StatusApproved, manager, later); err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if p.ApprovedAt == nil || !p.ApprovedAt.Equal(later) {
		t.Fatalf("approved_at after reset = %v, want %v", p.ApprovedAt, later)
	}
}

func TestAdvanceFromFills(t *testing.T) {
	entries := func(filled int) []domain.FillEntry {
		return []domain.FillEntry{{Lots: 10, FilledLots: filled, Price: 100, RequestedAt: testNow}}
	}

	tests := []struct {
		name       string
		status     domain.PositionStatus
		filled     int
		wantStatus domain.PositionStatus
		wantStamp  bool
	}{
		{"no fills stays put", domain.StatusOrderPlaced, 0, domain.StatusOrderPlaced, false},
		{"partial fill", domain.StatusOrderPlaced, 4, domain.StatusPartialFillsReceived, true},
		{"full fill", domain.StatusOrderPlaced, 10, domain.StatusFillsReceived, true},
		{"partial completes", domain.StatusPartialFillsReceived, 10, domain.StatusFillsReceived, true},
		{"approved never advances", domain.StatusApproved, 10, domain.StatusApproved, false},
		{"pending never advances", domain.StatusPending, 10, domain.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := domain.Position{
				Status:          tt.status,
				Entries:         entries(tt.filled),
				TotalFilledLots: tt.filled,
			}
			AdvanceFromFills(&p, testNow)
			if p.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", p.Status, tt.wantStatus)
			}
			if tt.wantStamp && p.FillsReceivedAt == nil {
				t.Error("fills_received_at not stamped")
			}
			if !tt.wantStamp && p.FillsReceivedAt != nil {
				t.Error("fills_received_at stamped unexpectedly")
			}
		})
	}

	t.Run("stamp sticky across fill cycles", func(t *testing.T) {
		p := domain.Position{
			Status:          domain.StatusOrderPlaced,
			Entries:         entries(4),
			TotalFilledLots: 4,
		}
		AdvanceFromFills(&p, testNow)
		first := p.FillsReceivedAt

		p.Entries = entries(10)
		p.TotalFilledLots = 10
		AdvanceFromFills(&p, testNow.Add(time.Hour))
		if p.FillsReceivedAt == nil || !p.FillsReceivedAt.Equal(*first) {
			t.Errorf("fills_received_at re-stamped: %v, want %v", p.FillsReceivedAt, first)
		}
	})
}

func TestDemoteOnAppend(t *testing.T) {
	p := domain.Position{Status: domain.StatusFillsReceived}
	DemoteOnAppend(&p)
	if p.Status != domain.StatusPartialFillsReceived {
		t.Fatalf("status = %q, want partial_fills_received", p.Status)
	}

	p.Status = domain.StatusOrderPlaced
	DemoteOnAppend(&p)
	if p.Status != domain.StatusOrderPlaced {
		t.Fatalf("status = %q, want order_placed unchanged", p.Status)
	}
}

func TestRequestClose(t *testing.T) {
	t.Run("owner requests close once", func(t *testing.T) {
		p := domain.Position{TraderID: trader.ID}
		if err := RequestClose(&p, trader, testNow); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !p.IsClosed || p.CloseRequestedAt == nil {
			t.Fatal("close request not recorded")
		}
		if err := RequestClose(&p, trader, testNow); !domain.IsValidation(err) {
			t.Fatalf("expected ValidationError on repeat, got %v", err)
		}
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		p := domain.Position{TraderID: trader.ID}
		if err := RequestClose(&p, other, testNow); !domain.IsPermission(err) {
			t.Fatalf("expected PermissionError, got %v", err)
		}
		if p.IsClosed {
			t.Error("position mutated on permission error")
		}
	})
}

func TestAcceptClose(t *testing.T) {
	tests := []struct {
		name     string
		p        domain.Position
		actor    domain.Actor
		wantPerm bool
		wantVal  bool
	}{
		{
			name:  "manager accepts pending request",
			p:     domain.Position{TraderID: trader.ID, IsClosed: true},
			actor: manager,
		},
		{
			name:     "trader cannot accept",
			p:        domain.Position{TraderID: trader.ID, IsClosed: true},
			actor:    trader,
			wantPerm: true,
		},
		{
			name:    "no request to accept",
			p:       domain.Position{TraderID: trader.ID},
			actor:   manager,
			wantVal: true,
		},
		{
			name:    "already accepted",
			p:       domain.Position{TraderID: trader.ID, IsClosed: true, CloseAccepted: true},
			actor:   manager,
			wantVal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AcceptClose(&tt.p, tt.actor)
			switch {
			case tt.wantPerm:
				if !domain.IsPermission(err) {
					t.Fatalf("expected PermissionError, got %v", err)
				}
			case tt.wantVal:
				if !domain.IsValidation(err) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if !tt.p.CloseAccepted {
					t.Error("close not accepted")
				}
			}
		})
	}
}

func TestCanRecordFill(t *testing.T) {
	allowed := map[domain.PositionStatus]bool{
		domain.StatusPending:              false,
		domain.StatusApproved:             true,
		domain.StatusOrderPlaced:          true,
		domain.StatusPartialFillsReceived: true,
		domain.StatusFillsReceived:        false,
	}
	for status, want := range allowed {
		p := domain.Position{Status: status}
		if got := CanRecordFill(&p); got != want {
			t.Errorf("CanRecordFill(%q) = %v, want %v", status, got, want)
		}
	}
}
