package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"finai/internal/core"
	"finai/internal/ledger"
	"finai/internal/oracle"
	"finai/internal/services"
	"finai/internal/storage"
)

var testNow = time.Date(2025, 4, 10, 15, 30, 0, 0, time.UTC)

func intp(v int) *int { return &v }

// scriptedOracle returns its results in order and records every request.
type scriptedOracle struct {
	mu       sync.Mutex
	results  []oracle.Result
	err      error
	requests []oracle.Request
}

func (o *scriptedOracle) Classify(_ context.Context, req oracle.Request) (oracle.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requests = append(o.requests, req)
	if o.err != nil {
		return oracle.Result{}, o.err
	}
	if len(o.results) == 0 {
		return oracle.Result{Type: oracle.Clarification, Response: "?"}, nil
	}
	r := o.results[0]
	o.results = o.results[1:]
	return r, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	confirmed []core.Transaction
	retired   []core.FixedExpense
	err       error
}

func (p *recordingPublisher) TransactionConfirmed(_ context.Context, _ string, tx core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, tx)
	return p.err
}

func (p *recordingPublisher) CommitmentRetired(_ context.Context, _ string, f core.FixedExpense) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retired = append(p.retired, f)
	return p.err
}

type fakeArchiver struct {
	keys []string
	err  error
}

func (a *fakeArchiver) Archive(_ context.Context, userID, messageID string, img oracle.Image) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := "gs://bucket/receipts/" + userID + "/" + messageID
	a.keys = append(a.keys, key)
	return key, nil
}

type fixture struct {
	store     *storage.MemoryStore
	oracle    *scriptedOracle
	publisher *recordingPublisher
	deps      Deps
}

func newFixture(results ...oracle.Result) *fixture {
	f := &fixture{
		store:     storage.NewMemoryStore(),
		oracle:    &scriptedOracle{results: results},
		publisher: &recordingPublisher{},
	}
	f.deps = Deps{
		Store:      f.store,
		Classifier: f.oracle,
		Publisher:  f.publisher,
		SaveDelay:  time.Hour,
		Now:        func() time.Time { return testNow },
	}
	return f
}

func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), "u1", "Ana", f.deps)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func installmentResult(total int) oracle.Result {
	return oracle.Result{
		Type:        oracle.Installment,
		IntentLabel: "Parcelamento",
		Transaction: &oracle.Payload{Amount: 150, Merchant: "TV", Direction: "outflow", TotalInstallments: intp(total)},
		Response:    "Parcelamento registrado.",
	}
}

func TestOpenNewUserStartsFromDefaults(t *testing.T) {
	f := newFixture()
	s := f.open(t)

	if got := len(s.Categories()); got != len(core.DefaultCategories()) {
		t.Errorf("categories = %d", got)
	}
	if len(s.Transactions(Filter{})) != 0 || len(s.Incomes()) != 0 {
		t.Error("new user should start empty")
	}
	st := s.SyncStatus()
	if !st.Loaded || st.Dirty || st.Warning != "" {
		t.Errorf("status = %+v", st)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.store.Saves() != 0 {
		t.Errorf("clean session should not write, saves = %d", f.store.Saves())
	}
}

func TestOpenLoadFailureFallsBackToDefaults(t *testing.T) {
	f := newFixture()
	f.store.FailLoad = errors.New("network down")
	s := f.open(t)

	st := s.SyncStatus()
	if !st.Loaded || !strings.Contains(st.Warning, "network down") {
		t.Fatalf("status = %+v", st)
	}
	if len(s.Categories()) != len(core.DefaultCategories()) {
		t.Error("expected default categories")
	}

	if _, err := s.AddIncome(context.Background(), core.Income{Name: "Salário", Amount: core.Cents(500000), Day: 5}); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if st := s.SyncStatus(); st.Warning != "" || st.Dirty || st.LastSavedAt.IsZero() {
		t.Errorf("status after save = %+v", st)
	}
}

func TestSubmitInstallmentThenConfirm(t *testing.T) {
	f := newFixture(installmentResult(10))
	s := f.open(t)
	ctx := context.Background()

	reply, err := s.SubmitMessage(ctx, Message{Text: "comprei uma TV de 1500 em 10x"})
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if reply.FixedExpense == nil || reply.Transaction == nil {
		t.Fatalf("reply = %+v", reply)
	}
	tx := *reply.Transaction
	if tx.Status != core.StatusStaging || tx.RawInput != "comprei uma TV de 1500 em 10x" {
		t.Errorf("tx = %+v", tx)
	}
	if tx.InstallmentInfo == nil || tx.InstallmentInfo.ParentID != reply.FixedExpense.ID {
		t.Fatalf("installment link = %+v", tx.InstallmentInfo)
	}
	if !strings.HasPrefix(reply.MessageID, "m-") {
		t.Errorf("message id = %q", reply.MessageID)
	}

	got, err := s.Confirm(ctx, tx.ID, nil)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if got.Transaction.Status != core.StatusConfirmed {
		t.Errorf("status = %s", got.Transaction.Status)
	}
	if got.Reconciliation == nil || got.Reconciliation.Remaining != 9 {
		t.Fatalf("reconciliation = %+v", got.Reconciliation)
	}

	// Confirming again only edits; the countdown does not move.
	merchant := "TV 55\""
	got, err = s.Confirm(ctx, tx.ID, &Edits{Merchant: &merchant})
	if err != nil {
		t.Fatal(err)
	}
	if got.Reconciliation != nil || got.Transaction.Merchant != merchant {
		t.Errorf("second confirm = %+v", got)
	}
	fixed := s.FixedExpenses()
	if len(fixed) != 1 || *fixed[0].RemainingMonths != 9 {
		t.Errorf("fixed = %+v", fixed)
	}
	if len(f.publisher.confirmed) != 1 {
		t.Errorf("confirmed events = %d, want 1", len(f.publisher.confirmed))
	}
}

func TestConfirmLastInstallmentRetiresPlan(t *testing.T) {
	f := newFixture(installmentResult(1))
	s := f.open(t)
	ctx := context.Background()

	reply, err := s.SubmitMessage(ctx, Message{Text: "TV à vista no cartão"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Confirm(ctx, reply.Transaction.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reconciliation == nil || !got.Reconciliation.Retired {
		t.Fatalf("reconciliation = %+v", got.Reconciliation)
	}
	if len(s.FixedExpenses()) != 0 {
		t.Error("retired plan should be removed")
	}
	if len(f.publisher.retired) != 1 || f.publisher.retired[0].ID != reply.FixedExpense.ID {
		t.Errorf("retired events = %+v", f.publisher.retired)
	}
}

func TestConfirmAppliesEditsAndValidates(t *testing.T) {
	f := newFixture(oracle.Result{
		Type:        oracle.PointTransaction,
		IntentLabel: "Gasto",
		Transaction: &oracle.Payload{Amount: 45.9, Merchant: "Padaria", Category: "Alimentação"},
		Response:    "Anotado.",
	})
	s := f.open(t)
	ctx := context.Background()
	reply, err := s.SubmitMessage(ctx, Message{Text: "padaria 45,90"})
	if err != nil {
		t.Fatal(err)
	}
	id := reply.Transaction.ID

	zero := core.Cents(0)
	if _, err := s.Confirm(ctx, id, &Edits{Amount: &zero}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	if tx, _ := s.Transaction(id); tx.Status != core.StatusStaging {
		t.Fatal("failed confirm must not change status")
	}

	amount := core.Cents(5000)
	inflow := core.Inflow
	got, err := s.Confirm(ctx, id, &Edits{Amount: &amount, Direction: &inflow})
	if err != nil {
		t.Fatal(err)
	}
	if got.Transaction.Amount.Cents != 5000 || got.Transaction.Direction != core.Inflow {
		t.Errorf("tx = %+v", got.Transaction)
	}
	if got.Reconciliation != nil {
		t.Error("point transactions do not reconcile")
	}

	if _, err := s.Confirm(ctx, "t-missing", nil); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestSubmitClarificationRecordsNothing(t *testing.T) {
	f := newFixture(oracle.Result{Type: oracle.Clarification, Response: "Quanto foi?"})
	s := f.open(t)

	reply, err := s.SubmitMessage(context.Background(), Message{Text: "gastei no mercado"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Type != oracle.Clarification || reply.Message != "Quanto foi?" || reply.Transaction != nil {
		t.Errorf("reply = %+v", reply)
	}
	if s.SyncStatus().Dirty {
		t.Error("clarifications must not dirty the session")
	}
}

func TestSubmitClassifierFailureAsksAgain(t *testing.T) {
	f := newFixture()
	f.oracle.err = errors.New("quota exceeded")
	s := f.open(t)

	reply, err := s.SubmitMessage(context.Background(), Message{Text: "uber 20"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Type != oracle.Clarification || reply.Message != oracle.FallbackResponse {
		t.Errorf("reply = %+v", reply)
	}
}

func TestSubmitSendsContext(t *testing.T) {
	f := newFixture()
	s := f.open(t)
	ctx := context.Background()
	if _, err := s.AddIncome(ctx, core.Income{Name: "Salário", Amount: core.Cents(100000), Day: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SubmitMessage(ctx, Message{Text: "oi"}); err != nil {
		t.Fatal(err)
	}
	req := f.oracle.requests[0]
	for _, want := range []string{"USUÁRIO: Ana", "Salário", "DIA HOJE: 10"} {
		if !strings.Contains(req.Context, want) {
			t.Errorf("context %q missing %q", req.Context, want)
		}
	}
}

func TestSubmitRejectsEmptyMessage(t *testing.T) {
	s := newFixture().open(t)
	if _, err := s.SubmitMessage(context.Background(), Message{Text: "  "}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v", err)
	}
}

func TestSubmitLocalDuplicateHint(t *testing.T) {
	f := newFixture(oracle.Result{
		Type:        oracle.FixedIncome,
		Transaction: &oracle.Payload{Amount: 5000, Merchant: "Salario", Day: intp(5)},
		Response:    "Receita fixa cadastrada.",
	})
	s := f.open(t)
	ctx := context.Background()
	if _, err := s.AddIncome(ctx, core.Income{Name: "Salário", Amount: core.Cents(500000), Day: 5}); err != nil {
		t.Fatal(err)
	}

	reply, err := s.SubmitMessage(ctx, Message{Text: "recebo salario dia 5"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(reply.Message, services.DuplicateWarning) {
		t.Errorf("message = %q", reply.Message)
	}
	if len(s.Incomes()) != 2 {
		t.Error("duplicate hints are advisory; the income is still added")
	}
}

func TestSubmitArchivesReceipt(t *testing.T) {
	f := newFixture()
	archiver := &fakeArchiver{}
	f.deps.Receipts = archiver
	s := f.open(t)

	img := &oracle.Image{MIMEType: "image/png", Data: []byte{1, 2}}
	reply, err := s.SubmitMessage(context.Background(), Message{Image: img})
	if err != nil {
		t.Fatal(err)
	}
	if len(archiver.keys) != 1 || reply.ReceiptKey != archiver.keys[0] {
		t.Errorf("receipt key = %q, archived = %v", reply.ReceiptKey, archiver.keys)
	}
	if f.oracle.requests[0].Image != img {
		t.Error("image should reach the classifier")
	}

	archiver.err = errors.New("bucket missing")
	if _, err := s.SubmitMessage(context.Background(), Message{Image: img}); err != nil {
		t.Fatalf("archive failures must not fail the message: %v", err)
	}
}

func TestReject(t *testing.T) {
	f := newFixture(
		oracle.Result{Type: oracle.PointTransaction, Transaction: &oracle.Payload{Amount: 10, Merchant: "A"}},
		oracle.Result{Type: oracle.PointTransaction, Transaction: &oracle.Payload{Amount: 20, Merchant: "B"}},
	)
	s := f.open(t)
	ctx := context.Background()
	a, _ := s.SubmitMessage(ctx, Message{Text: "a"})
	b, _ := s.SubmitMessage(ctx, Message{Text: "b"})

	if err := s.Reject(ctx, a.Transaction.ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if _, ok := s.Transaction(a.Transaction.ID); ok {
		t.Error("rejected transaction should be gone")
	}
	if _, err := s.Confirm(ctx, b.Transaction.ID, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Reject(ctx, b.Transaction.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("err = %v, want ErrNotPending", err)
	}
	if err := s.Reject(ctx, "t-nope"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestEditKeepsStatus(t *testing.T) {
	f := newFixture(oracle.Result{Type: oracle.PointTransaction, Transaction: &oracle.Payload{Amount: 10, Merchant: "A"}})
	s := f.open(t)
	ctx := context.Background()
	r, _ := s.SubmitMessage(ctx, Message{Text: "a"})

	cat := "  "
	tx, err := s.Edit(ctx, r.Transaction.ID, Edits{Category: &cat})
	if err != nil {
		t.Fatal(err)
	}
	if tx.Status != core.StatusStaging || tx.Category != core.DefaultCategoryName {
		t.Errorf("tx = %+v", tx)
	}
}

func TestDebouncedSaveCoalescesMutations(t *testing.T) {
	f := newFixture()
	f.deps.SaveDelay = 30 * time.Millisecond
	s := f.open(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.AddCategory(ctx, "Pets"+string(rune('A'+i)), "", ""); err != nil {
			t.Fatal(err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.store.Saves() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if got := f.store.Saves(); got != 2 {
		t.Fatalf("saves = %d, want one flush of both documents", got)
	}
	settings, _, _ := f.store.LoadSettings(ctx, "u1")
	if settings == nil || len(settings.Categories) != len(core.DefaultCategories())+3 {
		t.Fatalf("persisted settings = %+v", settings)
	}
}

func TestFailedSaveStaysDirtyAndRetriesOnClose(t *testing.T) {
	f := newFixture()
	s := f.open(t)
	ctx := context.Background()

	boom := errors.New("offline")
	f.store.SetFailSave(boom)
	if _, err := s.AddIncome(ctx, core.Income{Name: "Aluguel recebido", Amount: core.Cents(120000), Day: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Flush(ctx); !errors.Is(err, boom) {
		t.Fatalf("Flush err = %v", err)
	}
	st := s.SyncStatus()
	if !st.Dirty || !strings.Contains(st.Warning, "sync failed") {
		t.Fatalf("status = %+v", st)
	}

	f.store.SetFailSave(nil)
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.AddIncome(ctx, core.Income{Name: "x", Amount: core.Cents(1), Day: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}

	reopened := f.open(t)
	if got := reopened.Incomes(); len(got) != 1 || got[0].Name != "Aluguel recebido" {
		t.Errorf("incomes after reopen = %+v", got)
	}
}

func TestTransactionsFilter(t *testing.T) {
	f := newFixture(
		oracle.Result{Type: oracle.PointTransaction, Transaction: &oracle.Payload{Amount: 10, Merchant: "Mercado", Category: "Alimentação"}},
		oracle.Result{Type: oracle.PointTransaction, Transaction: &oracle.Payload{Amount: 20, Merchant: "Uber", Category: "Transporte"}},
	)
	s := f.open(t)
	ctx := context.Background()
	a, _ := s.SubmitMessage(ctx, Message{Text: "a"})
	s.SubmitMessage(ctx, Message{Text: "b"})
	if _, err := s.Confirm(ctx, a.Transaction.ID, nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 2},
		{"pending", Filter{Status: core.StatusStaging}, 1},
		{"history", Filter{Status: core.StatusConfirmed, Year: 2025, Month: time.April}, 1},
		{"history search miss", Filter{Status: core.StatusConfirmed, Year: 2025, Month: time.April, Query: "uber"}, 0},
		{"search any status", Filter{Query: "UBER"}, 1},
		{"other month", Filter{Year: 2025, Month: time.March}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(s.Transactions(tt.filter)); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	if months := s.Months(); len(months) != 1 || months[0] != ledger.MonthOf(testNow) {
		t.Errorf("months = %+v", months)
	}
	if sum := s.Summary(); sum.Outflow != 1000 || sum.PendingCount != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if _, err := s.Project(2); !errors.Is(err, services.ErrInvalidProjectionRange) {
		t.Errorf("err = %v", err)
	}
}

func TestPostRecurring(t *testing.T) {
	f := newFixture()
	s := f.open(t)
	ctx := context.Background()
	if _, err := s.AddIncome(ctx, core.Income{Name: "Salário", Amount: core.Cents(500000), Day: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddFixedExpense(ctx, core.FixedExpense{Name: "Academia", Amount: core.Cents(9990), Day: 25, Type: core.Subscription}); err != nil {
		t.Fatal(err)
	}

	if n := s.PostRecurring(ctx); n != 1 {
		t.Fatalf("posted = %d, want 1 (only the income is due)", n)
	}
	if n := s.PostRecurring(ctx); n != 0 {
		t.Fatalf("second run posted %d", n)
	}
	pending := s.Transactions(Filter{Status: core.StatusPendingFixed})
	if len(pending) != 1 || pending[0].Direction != core.Inflow {
		t.Errorf("pending = %+v", pending)
	}
}

func TestManagerReusesAndEvictsSessions(t *testing.T) {
	f := newFixture()
	m := NewManager(f.deps, 1, time.Hour)
	ctx := context.Background()

	s1, err := m.Get(ctx, "u1", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := m.Get(ctx, "u1", "Ana")
	if s1 != again {
		t.Fatal("expected the cached session")
	}
	if _, err := s1.AddIncome(ctx, core.Income{Name: "Bolsa", Amount: core.Cents(70000), Day: 10}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.Get(ctx, "u2", "Bia"); err != nil {
		t.Fatal(err)
	}
	if settings, found, _ := f.store.LoadSettings(ctx, "u1"); !found || len(settings.Incomes) != 1 {
		t.Fatalf("evicted session was not flushed: %+v", settings)
	}

	s1b, _ := m.Get(ctx, "u1", "Ana")
	if s1b == s1 || len(s1b.Incomes()) != 1 {
		t.Error("reopened session should load the flushed state")
	}
	m.Close()
	if m.Len() != 0 {
		t.Errorf("len = %d", m.Len())
	}
}

func TestManagerConcurrentGetSharesOneSession(t *testing.T) {
	m := NewManager(newFixture().deps, 10, time.Hour)
	var wg sync.WaitGroup
	got := make([]*Session, 8)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Get(context.Background(), "u1", "Ana")
			if err != nil {
				t.Error(err)
			}
			got[i] = s
		}(i)
	}
	wg.Wait()
	for _, s := range got[1:] {
		if s != got[0] {
			t.Fatal("concurrent opens produced different sessions")
		}
	}
}

func TestManagerKeepsHeldSessionOpenAcrossEviction(t *testing.T) {
	f := newFixture()
	m := NewManager(f.deps, 1, time.Hour)
	ctx := context.Background()

	s1, release, err := m.Acquire(ctx, "u1", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, "u2", "Bia"); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.AddIncome(ctx, core.Income{Name: "Bolsa", Amount: core.Cents(70000), Day: 10}); err != nil {
		t.Fatalf("held session rejected a change after eviction: %v", err)
	}
	if _, found, _ := f.store.LoadSettings(ctx, "u1"); found {
		t.Fatal("held session was closed on eviction")
	}

	again, releaseAgain, err := m.Acquire(ctx, "u1", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	if again != s1 {
		t.Fatal("a second caller got a different session while the first was held")
	}
	release()
	release()
	releaseAgain()

	m.Close()
	settings, found, _ := f.store.LoadSettings(ctx, "u1")
	if !found || len(settings.Incomes) != 1 {
		t.Fatalf("settings after close = %+v", settings)
	}
}

// gatedStore blocks the first settings save of u1 until gate is closed.
type gatedStore struct {
	*storage.MemoryStore
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedStore) SaveSettings(ctx context.Context, userID string, settings core.UserSettings) error {
	if userID == "u1" {
		g.once.Do(func() { close(g.entered) })
		<-g.gate
	}
	return g.MemoryStore.SaveSettings(ctx, userID, settings)
}

func TestManagerReopenWaitsForFinalSave(t *testing.T) {
	f := newFixture()
	store := &gatedStore{MemoryStore: f.store, entered: make(chan struct{}), gate: make(chan struct{})}
	f.deps.Store = store
	m := NewManager(f.deps, 1, time.Hour)
	ctx := context.Background()

	s1, err := m.Get(ctx, "u1", "Ana")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s1.AddIncome(ctx, core.Income{Name: "Bolsa", Amount: core.Cents(70000), Day: 10}); err != nil {
		t.Fatal(err)
	}

	go func() { _, _ = m.Get(ctx, "u2", "Bia") }()
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("eviction never saved u1")
	}

	reopened := make(chan *Session, 1)
	go func() {
		s, err := m.Get(ctx, "u1", "Ana")
		if err != nil {
			t.Error(err)
		}
		reopened <- s
	}()
	select {
	case <-reopened:
		t.Fatal("reopen did not wait for the final save")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.gate)
	select {
	case s := <-reopened:
		if s == nil || s == s1 || len(s.Incomes()) != 1 {
			t.Fatal("reopened session did not load the saved income")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reopen never finished")
	}
	m.Close()
}

func TestDeletedCategoryResolvesToFallback(t *testing.T) {
	f := newFixture(oracle.Result{
		Type:        oracle.PointTransaction,
		IntentLabel: "Gasto",
		Transaction: &oracle.Payload{Amount: 80, Merchant: "Petz", Category: "Pets", Direction: "outflow"},
		Response:    "Anotado.",
	})
	s := f.open(t)
	ctx := context.Background()

	pets, err := s.AddCategory(ctx, "Pets", "🐶", "#F97316")
	if err != nil {
		t.Fatal(err)
	}
	reply, err := s.SubmitMessage(ctx, Message{Text: "80 na petz"})
	if err != nil || reply.Transaction == nil {
		t.Fatalf("reply = %+v err = %v", reply, err)
	}
	if _, err := s.Confirm(ctx, reply.Transaction.ID, nil); err != nil {
		t.Fatal(err)
	}

	views := s.DescribeTransactions(Filter{})
	if len(views) != 1 || views[0].CategoryInfo.Icon != "🐶" || views[0].CategoryInfo.Color != "#F97316" {
		t.Fatalf("views = %+v", views)
	}
	if rows := s.Summary().Categories; len(rows) != 1 || rows[0].Icon != "🐶" {
		t.Fatalf("breakdown = %+v", rows)
	}

	if err := s.DeleteCategory(ctx, pets.ID); err != nil {
		t.Fatal(err)
	}
	view, ok := s.DescribeTransaction(reply.Transaction.ID)
	if !ok || view.Category != "Pets" {
		t.Fatalf("view = %+v", view)
	}
	if view.CategoryInfo.Icon != core.UnknownCategory.Icon || view.CategoryInfo.Color != core.UnknownCategory.Color {
		t.Errorf("category info = %+v", view.CategoryInfo)
	}
	rows := s.Summary().Categories
	if len(rows) != 1 || rows[0].Category != "Pets" ||
		rows[0].Icon != core.UnknownCategory.Icon || rows[0].Color != core.UnknownCategory.Color {
		t.Errorf("breakdown = %+v", rows)
	}
}
