package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openfloor/tradedesk/internal/domain"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// memStore is an in-memory store set with copy-on-begin rollback semantics,
// standing in for the postgres layer in service tests.
type memStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	exits     map[string]domain.Exit
	audit     []string
}

func newMemStore() *memStore {
	return &memStore{
		positions: make(map[string]domain.Position),
		exits:     make(map[string]domain.Exit),
	}
}

func (m *memStore) snapshot() (map[string]domain.Position, map[string]domain.Exit, []string) {
	ps := make(map[string]domain.Position, len(m.positions))
	for k, v := range m.positions {
		ps[k] = v
	}
	es := make(map[string]domain.Exit, len(m.exits))
	for k, v := range m.exits {
		es[k] = v
	}
	return ps, es, append([]string(nil), m.audit...)
}

// WithinTx gives fn the live store and restores the snapshot if fn fails,
// mimicking transactional rollback.
func (m *memStore) WithinTx(_ context.Context, fn func(domain.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, es, audit := m.snapshot()
	err := fn(domain.Stores{Positions: (*memPositions)(m), Exits: (*memExits)(m), Audit: (*memAudit)(m)})
	if err != nil {
		m.positions, m.exits, m.audit = ps, es, audit
	}
	return err
}

type memPositions memStore

func (m *memPositions) Create(_ context.Context, p domain.Position) error {
	m.positions[p.ID] = p
	return nil
}

func (m *memPositions) GetByID(_ context.Context, id string) (domain.Position, error) {
	p, ok := m.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositions) GetForUpdate(ctx context.Context, id string) (domain.Position, error) {
	return m.GetByID(ctx, id)
}

func (m *memPositions) Update(_ context.Context, p domain.Position) error {
	if _, ok := m.positions[p.ID]; !ok {
		return domain.ErrNotFound
	}
	m.positions[p.ID] = p
	return nil
}

func (m *memPositions) List(_ context.Context, _ domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPositions) ListByTrader(_ context.Context, traderID string, _ domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range m.positions {
		if p.TraderID == traderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositions) ListOpen(_ context.Context, traderID string) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range m.positions {
		if p.IsClosed {
			continue
		}
		if traderID == "" || p.TraderID == traderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositions) ListCloseRequests(_ context.Context) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range m.positions {
		if p.IsClosed && !p.CloseAccepted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositions) ListClosed(_ context.Context, _ domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, p := range m.positions {
		if p.IsClosed && p.CloseAccepted {
			out = append(out, p)
		}
	}
	return out, nil
}

type memExits memStore

func (m *memExits) Create(_ context.Context, e domain.Exit) error {
	m.exits[e.ID] = e
	return nil
}

func (m *memExits) GetByID(_ context.Context, id string) (domain.Exit, error) {
	e, ok := m.exits[id]
	if !ok {
		return domain.Exit{}, domain.ErrNotFound
	}
	return e, nil
}

func (m *memExits) GetForUpdate(ctx context.Context, id string) (domain.Exit, error) {
	return m.GetByID(ctx, id)
}

func (m *memExits) Update(_ context.Context, e domain.Exit) error {
	if _, ok := m.exits[e.ID]; !ok {
		return domain.ErrNotFound
	}
	m.exits[e.ID] = e
	return nil
}

func (m *memExits) ListByPosition(_ context.Context, positionID string) ([]domain.Exit, error) {
	var out []domain.Exit
	for _, e := range m.exits {
		if e.PositionID == positionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memExits) LiveLots(_ context.Context, positionID string) (int, int, error) {
	var requested, received int
	for _, e := range m.exits {
		if e.PositionID != positionID || !e.ExitStatus.Live() {
			continue
		}
		requested += e.RequestedExitLots
		received += e.ReceivedLots
	}
	return requested, received, nil
}

type memAudit memStore

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.audit = append(m.audit, event)
	return nil
}

type fakeLocks struct{ acquired []string }

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.acquired = append(f.acquired, key)
	return func() {}, nil
}

type published struct {
	topic   string
	payload []byte
}

type fakeBus struct{ events []published }

func (f *fakeBus) Publish(_ context.Context, topic string, payload []byte) error {
	f.events = append(f.events, published{topic: topic, payload: payload})
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, _ string) (<-chan domain.Signal, error) {
	ch := make(chan domain.Signal)
	go func() { <-ctx.Done(); close(ch) }()
	return ch, nil
}

type testEnv struct {
	store *memStore
	locks *fakeLocks
	bus   *fakeBus
	pos   *PositionService
	exits *ExitService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	locks := &fakeLocks{}
	bus := &fakeBus{}
	logger := slog.New(slog.DiscardHandler)
	return &testEnv{
		store: store,
		locks: locks,
		bus:   bus,
		pos:   NewPositionService(store, locks, bus, nil, nil, logger),
		exits: NewExitService(store, locks, bus, nil, logger),
	}
}

var (
	trader  = domain.Actor{ID: "trader-1", Name: "Ana"}
	rival   = domain.Actor{ID: "trader-2", Name: "Bram"}
	manager = domain.Actor{ID: "mgr-1", Name: "Kim", IsManager: true}
)

func entries(lots, filled int, price float64) []domain.FillEntry {
	return []domain.FillEntry{{Lots: lots, FilledLots: filled, Price: price, RequestedAt: testNow}}
}

// seedFilled creates an approved, order-placed position with the given fill
// directly through the store, bypassing the service for test setup.
func (env *testEnv) seedFilled(t *testing.T, id string, lots, filled int, price float64) domain.Position {
	t.Helper()
	p := domain.Position{
		ID:        id,
		Kind:      domain.KindTrade,
		TradeType: domain.TradeTypeLong,
		Symbol:    "CL",
		TraderID:  trader.ID,
		Entries:   entries(lots, filled, price),
		Status:    domain.StatusOrderPlaced,
		CreatedAt: testNow,
	}
	p.TotalFilledLots = filled
	p.AvgPrice = price
	env.store.positions[p.ID] = p
	return p
}

func TestCreatePosition(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	p, err := env.pos.Create(ctx, trader, CreatePositionInput{
		Kind:      domain.KindTrade,
		TradeType: domain.TradeTypeLong,
		Symbol:    "CL",
		Entries:   entries(10, 0, 100.0),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != domain.StatusPending {
		t.Errorf("status = %q, want pending", p.Status)
	}
	if p.TraderID != trader.ID {
		t.Errorf("trader_id = %q, want %q", p.TraderID, trader.ID)
	}
	if p.ID == "" {
		t.Error("missing id")
	}
	if len(env.bus.events) != 1 || env.bus.events[0].topic != domain.TopicPositions {
		t.Fatalf("expected one publish on %q, got %+v", domain.TopicPositions, env.bus.events)
	}
	var evt struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(env.bus.events[0].payload, &evt); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if evt.Type != "position_update" {
		t.Errorf("event type = %q, want position_update", evt.Type)
	}
}

func TestCreateSpreadLegRules(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	legEntries := func(legs ...string) []domain.FillEntry {
		out := make([]domain.FillEntry, len(legs))
		for i, leg := range legs {
			out[i] = domain.FillEntry{Leg: leg, Lots: 5, Price: 100, RequestedAt: testNow}
		}
		return out
	}

	tests := []struct {
		name       string
		spreadType domain.SpreadType
		legs       []string
		wantErr    bool
	}{
		{"fly needs two legs", domain.SpreadTypeFly, []string{"M24", "Z24"}, false},
		{"fly rejects one leg", domain.SpreadTypeFly, []string{"M24"}, true},
		{"fly rejects three legs", domain.SpreadTypeFly, []string{"M24", "U24", "Z24"}, true},
		{"custom needs three legs", domain.SpreadTypeCustom, []string{"M24", "U24", "Z24"}, false},
		{"custom rejects two legs", domain.SpreadTypeCustom, []string{"M24", "Z24"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.pos.Create(ctx, trader, CreatePositionInput{
				Kind:       domain.KindSpread,
				TradeType:  domain.TradeTypeLong,
				SpreadType: tt.spreadType,
				Symbol:     "CL",
				Entries:    legEntries(tt.legs...),
			})
			if tt.wantErr && !domain.IsValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRecordFillRecomputesAndAdvances(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 10, 0, 100.0)

	got, err := env.pos.RecordFill(ctx, trader, p.ID, entries(10, 10, 100.0))
	if err != nil {
		t.Fatalf("record fill: %v", err)
	}
	if got.TotalFilledLots != 10 || got.AvgPrice != 100.0 {
		t.Errorf("derived = (%d, %v), want (10, 100)", got.TotalFilledLots, got.AvgPrice)
	}
	if got.Status != domain.StatusFillsReceived {
		t.Errorf("status = %q, want fills_received", got.Status)
	}
	if len(env.locks.acquired) != 1 || env.locks.acquired[0] != "position:p1" {
		t.Errorf("lock keys = %v, want [position:p1]", env.locks.acquired)
	}
}

func TestRecordFillRepricesLiveExits(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 20, 20, 100.0)

	price := 120.0
	pl := 100.0
	env.store.exits["e1"] = domain.Exit{
		ID: "e1", PositionID: p.ID,
		RequestedExitLots: 5, ReceivedLots: 5,
		ExitPrice: &price, ProfitLoss: &pl,
		ExitStatus: domain.ExitFilled, InitiatedBy: trader.ID, RequestedAt: testNow,
	}
	env.store.exits["e2"] = domain.Exit{
		ID: "e2", PositionID: p.ID,
		RequestedExitLots: 5, ReceivedLots: 5,
		ExitPrice: &price, ProfitLoss: &pl,
		ExitStatus: domain.ExitCancelled, InitiatedBy: trader.ID, RequestedAt: testNow,
	}

	// Correction moves the average from 100 to 105.
	_, err := env.pos.RecordFill(ctx, trader, p.ID, []domain.FillEntry{
		{Lots: 10, FilledLots: 10, Price: 100, RequestedAt: testNow},
		{Lots: 10, FilledLots: 10, Price: 110, RequestedAt: testNow},
	})
	if err != nil {
		t.Fatalf("record fill: %v", err)
	}

	live := env.store.exits["e1"]
	if live.ProfitLoss == nil || *live.ProfitLoss != 75.0 {
		t.Errorf("live exit profit_loss = %v, want 75", live.ProfitLoss)
	}
	cancelled := env.store.exits["e2"]
	if cancelled.ProfitLoss == nil || *cancelled.ProfitLoss != 100.0 {
		t.Errorf("cancelled exit repriced: %v", cancelled.ProfitLoss)
	}
}

func TestRecordFillGuards(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 10, 0, 100.0)

	t.Run("stranger rejected", func(t *testing.T) {
		_, err := env.pos.RecordFill(ctx, rival, p.ID, entries(10, 5, 100.0))
		if !domain.IsPermission(err) {
			t.Fatalf("expected PermissionError, got %v", err)
		}
	})

	t.Run("manager allowed", func(t *testing.T) {
		if _, err := env.pos.RecordFill(ctx, manager, p.ID, entries(10, 5, 100.0)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("pending position rejected", func(t *testing.T) {
		q := env.seedFilled(t, "p2", 10, 0, 100.0)
		q.Status = domain.StatusPending
		env.store.positions[q.ID] = q
		_, err := env.pos.RecordFill(ctx, trader, q.ID, entries(10, 5, 100.0))
		if !domain.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("fills cannot drop below exited lots", func(t *testing.T) {
		q := env.seedFilled(t, "p3", 10, 10, 100.0)
		env.store.exits["e3"] = domain.Exit{
			ID: "e3", PositionID: q.ID,
			RequestedExitLots: 8, ReceivedLots: 8,
			ExitStatus: domain.ExitFilled, InitiatedBy: trader.ID, RequestedAt: testNow,
		}
		_, err := env.pos.RecordFill(ctx, trader, q.ID, entries(10, 5, 100.0))
		if !domain.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if env.store.positions[q.ID].TotalFilledLots != 10 {
			t.Error("rejected fill left partial write behind")
		}
	})
}

func TestAppendEntriesDemotes(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 10, 10, 100.0)
	p.Status = domain.StatusFillsReceived
	env.store.positions[p.ID] = p

	got, err := env.pos.AppendEntries(ctx, trader, p.ID, entries(5, 0, 110.0))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if got.Status != domain.StatusPartialFillsReceived {
		t.Errorf("status = %q, want partial_fills_received", got.Status)
	}
	if len(got.Entries) != 2 {
		t.Errorf("entries = %d, want 2", len(got.Entries))
	}
	if got.TotalFilledLots != 10 || got.AvgPrice != 100.0 {
		t.Errorf("derived = (%d, %v), want (10, 100)", got.TotalFilledLots, got.AvgPrice)
	}

	if _, err := env.pos.AppendEntries(ctx, manager, p.ID, entries(5, 0, 110.0)); !domain.IsPermission(err) {
		t.Fatalf("expected PermissionError for non-owner, got %v", err)
	}
}

func TestTwoPhaseClose(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 10, 10, 100.0)

	if _, err := env.pos.AcceptClose(ctx, manager, p.ID); !domain.IsValidation(err) {
		t.Fatalf("accept before request: expected ValidationError, got %v", err)
	}

	got, err := env.pos.RequestClose(ctx, trader, p.ID)
	if err != nil {
		t.Fatalf("request close: %v", err)
	}
	if !got.IsClosed || got.CloseRequestedAt == nil {
		t.Fatal("close request not recorded")
	}

	if _, err := env.pos.AcceptClose(ctx, trader, p.ID); !domain.IsPermission(err) {
		t.Fatalf("trader accept: expected PermissionError, got %v", err)
	}

	got, err = env.pos.AcceptClose(ctx, manager, p.ID)
	if err != nil {
		t.Fatalf("accept close: %v", err)
	}
	if !got.CloseAccepted {
		t.Fatal("close not accepted")
	}

	closed, err := env.pos.ListClosed(ctx, manager, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("closed positions = %d, want 1", len(closed))
	}
}

func TestCreateExitsBoundsClaims(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 10, 10, 100.0)

	created, err := env.exits.CreateExits(ctx, trader, p.ID, []ExitRequest{
		{RequestedExitLots: 4},
		{RequestedExitLots: 3},
	})
	if err != nil {
		t.Fatalf("create exits: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %d, want 2", len(created))
	}
	for _, e := range created {
		if e.ExitStatus != domain.ExitPending {
			t.Errorf("exit status = %q, want pending", e.ExitStatus)
		}
		if e.InitiatedBy != trader.ID {
			t.Errorf("initiated_by = %q, want %q", e.InitiatedBy, trader.ID)
		}
	}

	// 7 of 10 lots claimed; asking for 4 more must fail atomically.
	_, err = env.exits.CreateExits(ctx, trader, p.ID, []ExitRequest{
		{RequestedExitLots: 2},
		{RequestedExitLots: 2},
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(env.store.exits) != 2 {
		t.Fatalf("exits = %d after rejected batch, want 2", len(env.store.exits))
	}

	// Cancelling releases the claim.
	first := created[0]
	if _, err := env.exits.UpdateExit(ctx, trader, first.ID, UpdateExitInput{Target: domain.ExitCancelled}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := env.exits.CreateExits(ctx, trader, p.ID, []ExitRequest{{RequestedExitLots: 4}}); err != nil {
		t.Fatalf("create after cancel: %v", err)
	}
}

func TestUpdateExitFill(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 10, 10, 100.0)

	created, err := env.exits.CreateExits(ctx, trader, p.ID, []ExitRequest{{RequestedExitLots: 5}})
	if err != nil {
		t.Fatalf("create exits: %v", err)
	}
	id := created[0].ID

	lots := 5
	price := 120.0
	got, err := env.exits.UpdateExit(ctx, manager, id, UpdateExitInput{
		Target:       domain.ExitFilled,
		ReceivedLots: &lots,
		ExitPrice:    &price,
	})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if got.ExitStatus != domain.ExitFilled || !got.IsClosed {
		t.Errorf("status = %q closed = %v, want filled/true", got.ExitStatus, got.IsClosed)
	}
	if got.ProfitLoss == nil || *got.ProfitLoss != 100.0 {
		t.Errorf("profit_loss = %v, want 100", got.ProfitLoss)
	}

	t.Run("fill without lots rejected", func(t *testing.T) {
		_, err := env.exits.UpdateExit(ctx, trader, id, UpdateExitInput{Target: domain.ExitPartialFilled})
		if !domain.IsValidation(err) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("exit events publish on the position topic", func(t *testing.T) {
		want := domain.PositionTopic(p.ID)
		var found bool
		for _, evt := range env.bus.events {
			if evt.topic == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("no event on %q", want)
		}
	})
}

func TestUpdateExitReceivedBoundedByPosition(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 10, 6, 100.0)

	created, err := env.exits.CreateExits(ctx, trader, p.ID, []ExitRequest{
		{RequestedExitLots: 4},
		{RequestedExitLots: 2},
	})
	if err != nil {
		t.Fatalf("create exits: %v", err)
	}

	lots := 4
	if _, err := env.exits.UpdateExit(ctx, trader, created[0].ID, UpdateExitInput{
		Target: domain.ExitFilled, ReceivedLots: &lots,
	}); err != nil {
		t.Fatalf("first fill: %v", err)
	}

	// 4 of 6 filled lots already exited; 3 more would overdraw.
	over := 3
	_, err = env.exits.UpdateExit(ctx, trader, created[1].ID, UpdateExitInput{
		Target: domain.ExitPartialFilled, ReceivedLots: &over,
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	ok := 2
	if _, err := env.exits.UpdateExit(ctx, trader, created[1].ID, UpdateExitInput{
		Target: domain.ExitFilled, ReceivedLots: &ok,
	}); err != nil {
		t.Fatalf("second fill: %v", err)
	}
}

func TestUpdateExitRejectsFillOnDeadExit(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	p := env.seedFilled(t, "p1", 10, 10, 100.0)

	env.store.exits["live"] = domain.Exit{
		ID: "live", PositionID: p.ID,
		RequestedExitLots: 5, ReceivedLots: 5,
		ExitStatus: domain.ExitPartialFilled, InitiatedBy: trader.ID, RequestedAt: testNow,
	}
	env.store.exits["dead"] = domain.Exit{
		ID: "dead", PositionID: p.ID,
		RequestedExitLots: 8, ReceivedLots: 3,
		ExitStatus: domain.ExitCancelled, InitiatedBy: trader.ID, RequestedAt: testNow,
	}

	// A cancelled exit no longer counts against the filled lots, so filling
	// it must not slip past the cross-exit bound.
	lots := 8
	_, err := env.exits.UpdateExit(ctx, trader, "dead", UpdateExitInput{
		Target: domain.ExitFilled, ReceivedLots: &lots,
	})
	if !domain.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	got := env.store.exits["dead"]
	if got.ExitStatus != domain.ExitCancelled || got.ReceivedLots != 3 {
		t.Errorf("dead exit mutated: status=%q received=%d", got.ExitStatus, got.ReceivedLots)
	}

	if _, err := env.exits.UpdateExit(ctx, trader, "rejected", UpdateExitInput{
		Target: domain.ExitFilled, ReceivedLots: &lots,
	}); err == nil {
		t.Fatal("expected error for unknown exit")
	}

	env.store.exits["veto"] = domain.Exit{
		ID: "veto", PositionID: p.ID,
		RequestedExitLots: 2,
		ExitStatus:        domain.ExitRejected, InitiatedBy: trader.ID, RequestedAt: testNow,
	}
	two := 2
	if _, err := env.exits.UpdateExit(ctx, trader, "veto", UpdateExitInput{
		Target: domain.ExitPartialFilled, ReceivedLots: &two,
	}); !domain.IsValidation(err) {
		t.Fatalf("rejected exit fill: expected ValidationError, got %v", err)
	}
}

func TestOpenBookScoping(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.seedFilled(t, "p1", 10, 10, 100.0)
	q := env.seedFilled(t, "p2", 10, 10, 100.0)
	q.TraderID = rival.ID
	env.store.positions[q.ID] = q

	mine, err := env.exits.OpenBook(ctx, trader)
	if err != nil {
		t.Fatalf("trader book: %v", err)
	}
	if len(mine) != 1 || mine[0].ID != "p1" {
		t.Fatalf("trader sees %d positions, want own only", len(mine))
	}

	all, err := env.exits.OpenBook(ctx, manager)
	if err != nil {
		t.Fatalf("manager book: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("manager sees %d positions, want 2", len(all))
	}
}

func TestManagerOnlyLists(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	if _, err := env.pos.ListAll(ctx, trader, domain.ListOpts{}); !domain.IsPermission(err) {
		t.Errorf("ListAll: expected PermissionError, got %v", err)
	}
	if _, err := env.pos.ListCloseRequests(ctx, trader); !domain.IsPermission(err) {
		t.Errorf("ListCloseRequests: expected PermissionError, got %v", err)
	}
	if _, err := env.pos.ListClosed(ctx, trader, domain.ListOpts{}); !domain.IsPermission(err) {
		t.Errorf("ListClosed: expected PermissionError, got %v", err)
	}
}
