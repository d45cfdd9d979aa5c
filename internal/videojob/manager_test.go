package videojob

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/provider"
)

type pollResult struct {
	status *provider.Status
	err    error
}

type fakeGenerator struct {
	name        string
	validateErr error
	cost        domain.Credits
	submitErr   error
	submission  *provider.Submission
	polls       []pollResult
	pollIdx     int
	pollCalls   int
	onPoll      func()
	artifact    []byte
	fetchErr    error
	cancelOK    bool
	cancelled   []string
}

func (f *fakeGenerator) Name() string {
	if f.name == "" {
		return "sora"
	}
	return f.name
}

func (f *fakeGenerator) Validate(req provider.Request) error { return f.validateErr }

func (f *fakeGenerator) EstimateCost(req provider.Request) domain.Credits { return f.cost }

func (f *fakeGenerator) Submit(ctx context.Context, req provider.Request) (*provider.Submission, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.submission != nil {
		return f.submission, nil
	}
	return &provider.Submission{ExternalID: "ext-1", State: provider.StateProcessing}, nil
}

func (f *fakeGenerator) Poll(ctx context.Context, externalID string) (*provider.Status, error) {
	f.pollCalls++
	if f.onPoll != nil {
		f.onPoll()
	}
	if len(f.polls) == 0 {
		return &provider.Status{State: provider.StateProcessing}, nil
	}
	r := f.polls[f.pollIdx]
	if f.pollIdx < len(f.polls)-1 {
		f.pollIdx++
	}
	return r.status, r.err
}

func (f *fakeGenerator) FetchArtifact(ctx context.Context, externalID string) ([]byte, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.artifact, nil
}

func (f *fakeGenerator) Cancel(ctx context.Context, externalID string) bool {
	f.cancelled = append(f.cancelled, externalID)
	return f.cancelOK
}

func (f *fakeGenerator) Capabilities() provider.Capabilities {
	return provider.Capabilities{MaxDurationSeconds: 60, MaxWidth: 1920, MaxHeight: 1080}
}

type fakeRegistry struct {
	gen *fakeGenerator
	err error
}

func (f *fakeRegistry) Resolve(name string) (provider.Generator, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.gen, nil
}

type fakeJobs struct {
	mu          sync.Mutex
	jobs        map[string]*domain.VideoJob
	progressLog map[string][]int
	createErr   error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{
		jobs:        make(map[string]*domain.VideoJob),
		progressLog: make(map[string][]int),
	}
}

func (f *fakeJobs) Create(ctx context.Context, job *domain.VideoJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *job
	f.jobs[job.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(ctx context.Context, id string) (*domain.VideoJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (f *fakeJobs) GetForUser(ctx context.Context, id, userID string) (*domain.VideoJob, error) {
	job, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobs) ListByUser(ctx context.Context, userID string, status *domain.JobStatus, limit, offset int) ([]domain.VideoJob, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VideoJob
	for _, job := range f.jobs {
		if job.UserID != userID {
			continue
		}
		if status != nil && job.Status != *status {
			continue
		}
		out = append(out, *job)
	}
	return out, len(out), nil
}

func (f *fakeJobs) MarkProcessing(ctx context.Context, id, providerJobID string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusProcessing
	job.ProviderJobID = providerJobID
	job.StartedAt = &startedAt
	return nil
}

func (f *fakeJobs) UpdateProgress(ctx context.Context, id string, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Progress = progress
	f.progressLog[id] = append(f.progressLog[id], progress)
	return nil
}

func (f *fakeJobs) MarkCompleted(ctx context.Context, id, artifactKey string, fileSize int64, actualDuration float64, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusCompleted
	job.ArtifactKey = artifactKey
	job.FileSize = fileSize
	job.ActualDuration = actualDuration
	job.CompletedAt = &completedAt
	job.Progress = 100
	return nil
}

func (f *fakeJobs) MarkFailed(ctx context.Context, id, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = errorMessage
	return nil
}

func (f *fakeJobs) MarkCancelled(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return false, nil
	}
	job.Status = domain.JobStatusCancelled
	return true, nil
}

func (f *fakeJobs) ClaimRefund(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if job.CreditsRefunded != 0 {
		return false, nil
	}
	job.CreditsRefunded = job.CreditsCost
	return true, nil
}

func (f *fakeJobs) ListStale(ctx context.Context, cutoff time.Time) ([]domain.VideoJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VideoJob
	for _, job := range f.jobs {
		if !job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobs) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

type ledgerCall struct {
	userID string
	amount domain.Credits
	jobID  string
}

type fakeLedger struct {
	mu       sync.Mutex
	balance  domain.Credits
	debitErr error
	debits   []ledgerCall
	refunds  []ledgerCall
}

func (f *fakeLedger) Debit(ctx context.Context, userID string, amount domain.Credits, description, jobID string) (domain.Credits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.debitErr != nil {
		return 0, f.debitErr
	}
	if amount > f.balance {
		return 0, domain.ErrInsufficientCredits
	}
	f.balance -= amount
	f.debits = append(f.debits, ledgerCall{userID, amount, jobID})
	return f.balance, nil
}

func (f *fakeLedger) Refund(ctx context.Context, userID string, amount domain.Credits, description, jobID string) (domain.Credits, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance += amount
	f.refunds = append(f.refunds, ledgerCall{userID, amount, jobID})
	return f.balance, nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeStore() *fakeStore { return &fakeStore{objects: make(map[string][]byte)} }

func (f *fakeStore) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.objects[key] = data
	return nil
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (f *fakeStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://cdn.example/" + key, nil
}

type fakeImages struct {
	url string
	err error
}

func (f *fakeImages) ResolveURL(ctx context.Context, userID, imageID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []JobEvent
}

func (f *fakeNotifier) JobEvent(ctx context.Context, evt JobEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.sleeps++
	f.now = f.now.Add(d)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

type testEnv struct {
	manager  *Manager
	gen      *fakeGenerator
	registry *fakeRegistry
	jobs     *fakeJobs
	ledger   *fakeLedger
	store    *fakeStore
	notifier *fakeNotifier
	clock    *fakeClock
}

func newTestEnv(cfg Config) *testEnv {
	gen := &fakeGenerator{cost: domain.CreditsFromFloat(0.75)}
	env := &testEnv{
		gen:      gen,
		registry: &fakeRegistry{gen: gen},
		jobs:     newFakeJobs(),
		ledger:   &fakeLedger{balance: domain.CreditsFromFloat(100)},
		store:    newFakeStore(),
		notifier: &fakeNotifier{},
		clock:    &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	env.manager = NewManager(cfg, Deps{
		Registry: env.registry,
		Jobs:     env.jobs,
		Ledger:   env.ledger,
		Store:    env.store,
		Images:   &fakeImages{url: "https://cdn.example/images/img-1"},
		Notifier: env.notifier,
		Clock:    env.clock,
		Logger:   infra.NewTestLogger(),
	})
	return env
}

func submitJob(t *testing.T, env *testEnv) *domain.VideoJob {
	t.Helper()
	job, err := env.manager.Generate(context.Background(), "user-1", GenerateInput{
		Provider:        "sora",
		Prompt:          "a cat surfing a wave",
		DurationSeconds: 5,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return job
}

func TestGenerateAdmitsAndCharges(t *testing.T) {
	env := newTestEnv(Config{})
	job := submitJob(t, env)

	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.CreditsCost != domain.CreditsFromFloat(0.75) {
		t.Errorf("credits cost = %s, want 0.75", job.CreditsCost)
	}
	if len(env.ledger.debits) != 1 {
		t.Fatalf("debits = %d, want 1", len(env.ledger.debits))
	}
	if env.ledger.debits[0].jobID != job.ID {
		t.Errorf("debit job id = %q, want %q", env.ledger.debits[0].jobID, job.ID)
	}
	if got, want := env.ledger.balance, domain.CreditsFromFloat(99.25); got != want {
		t.Errorf("balance = %s, want %s", got, want)
	}
	if len(env.manager.queue) != 1 {
		t.Errorf("queued jobs = %d, want 1", len(env.manager.queue))
	}
}

func TestGenerateInsufficientCredits(t *testing.T) {
	env := newTestEnv(Config{})
	env.ledger.balance = domain.CreditsFromFloat(0.10)

	_, err := env.manager.Generate(context.Background(), "user-1", GenerateInput{
		Provider: "sora",
		Prompt:   "too expensive",
	})
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if len(env.jobs.jobs) != 0 {
		t.Errorf("job created despite failed debit")
	}
}

func TestGenerateValidationFailureDoesNotCharge(t *testing.T) {
	env := newTestEnv(Config{})
	env.gen.validateErr = provider.InvalidRequestf("sora", "Duration exceeds maximum")

	_, err := env.manager.Generate(context.Background(), "user-1", GenerateInput{
		Provider:        "sora",
		Prompt:          "x",
		DurationSeconds: 999,
	})
	if !provider.IsInvalidRequest(err) {
		t.Fatalf("err = %v, want invalid request", err)
	}
	if len(env.ledger.debits) != 0 {
		t.Errorf("user charged for a rejected request")
	}
}

func TestGenerateCompensatesFailedCreate(t *testing.T) {
	env := newTestEnv(Config{})
	env.jobs.createErr = errors.New("db down")
	before := env.ledger.balance

	if _, err := env.manager.Generate(context.Background(), "user-1", GenerateInput{Provider: "sora", Prompt: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if len(env.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d, want 1", len(env.ledger.refunds))
	}
	if env.ledger.balance != before {
		t.Errorf("balance = %s, want %s (conserved)", env.ledger.balance, before)
	}
}

func TestProcessCompletesAndStoresArtifact(t *testing.T) {
	env := newTestEnv(Config{})
	env.gen.artifact = []byte("mp4-bytes")
	env.gen.polls = []pollResult{
		{status: &provider.Status{State: provider.StateProcessing, Progress: 40}},
		{status: &provider.Status{State: provider.StateCompleted, Progress: 100}},
	}
	job := submitJob(t, env)

	env.manager.process(context.Background(), job.ID)

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %q)", got.Status, got.ErrorMessage)
	}
	wantKey := "videos/user-1/" + job.ID + "/generated.mp4"
	if got.ArtifactKey != wantKey {
		t.Errorf("artifact key = %q, want %q", got.ArtifactKey, wantKey)
	}
	if data, err := env.store.Get(context.Background(), wantKey); err != nil || string(data) != "mp4-bytes" {
		t.Errorf("stored artifact = %q, %v", data, err)
	}
	if got.FileSize != int64(len("mp4-bytes")) {
		t.Errorf("file size = %d", got.FileSize)
	}
	if len(env.ledger.refunds) != 0 {
		t.Errorf("completed job was refunded")
	}
	if len(env.notifier.events) != 1 || env.notifier.events[0].Event != EventJobCompleted {
		t.Errorf("events = %+v, want one completion", env.notifier.events)
	}
}

func TestSubmitQuotaErrorFailsAndRefunds(t *testing.T) {
	env := newTestEnv(Config{})
	env.gen.submitErr = provider.QuotaExceeded("sora")
	before := env.ledger.balance
	job := submitJob(t, env)

	env.manager.process(context.Background(), job.ID)

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "quota") {
		t.Errorf("error message = %q, want quota mention", got.ErrorMessage)
	}
	if len(env.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d, want 1", len(env.ledger.refunds))
	}
	if env.ledger.balance != before {
		t.Errorf("balance = %s, want %s (conserved)", env.ledger.balance, before)
	}
}

func TestPollTimeoutFailsAfterMaxAttempts(t *testing.T) {
	env := newTestEnv(Config{})
	job := submitJob(t, env)

	env.manager.process(context.Background(), job.ID)

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "timed out") {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if env.clock.sleeps != 120 {
		t.Errorf("poll attempts = %d, want 120", env.clock.sleeps)
	}
	if len(env.ledger.refunds) != 1 {
		t.Errorf("refunds = %d, want 1", len(env.ledger.refunds))
	}
}

func TestFailureTwiceRefundsOnce(t *testing.T) {
	env := newTestEnv(Config{})
	job := submitJob(t, env)

	stored, _ := env.jobs.GetByID(context.Background(), job.ID)
	env.manager.finalizeFailure(context.Background(), stored, "Video generation failed")
	env.manager.finalizeFailure(context.Background(), stored, "Video generation failed")

	if len(env.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d, want exactly 1", len(env.ledger.refunds))
	}
}

func TestEmptyArtifactIsFailure(t *testing.T) {
	env := newTestEnv(Config{})
	env.gen.artifact = nil
	env.gen.polls = []pollResult{
		{status: &provider.Status{State: provider.StateCompleted, Progress: 100}},
	}
	job := submitJob(t, env)

	env.manager.process(context.Background(), job.ID)

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "without retrievable output") {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if len(env.ledger.refunds) != 1 {
		t.Errorf("refunds = %d, want 1", len(env.ledger.refunds))
	}
}

func TestFetchFailureFailsAndRefunds(t *testing.T) {
	env := newTestEnv(Config{})
	env.gen.fetchErr = provider.WrapTransport("sora", errors.New("connection reset"))
	env.gen.polls = []pollResult{
		{status: &provider.Status{State: provider.StateCompleted, Progress: 100}},
	}
	before := env.ledger.balance
	job := submitJob(t, env)

	env.manager.process(context.Background(), job.ID)

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "Failed to download generated video") {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if len(env.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d, want 1", len(env.ledger.refunds))
	}
	if env.ledger.balance != before {
		t.Errorf("balance = %s, want %s (conserved)", env.ledger.balance, before)
	}
	if len(env.store.objects) != 0 {
		t.Errorf("artifact stored despite failed download")
	}
}

func TestStoreFailureFailsAndRefunds(t *testing.T) {
	env := newTestEnv(Config{})
	env.gen.artifact = []byte("mp4-bytes")
	env.gen.polls = []pollResult{
		{status: &provider.Status{State: provider.StateCompleted, Progress: 100}},
	}
	env.store.putErr = errors.New("bucket unreachable")
	before := env.ledger.balance
	job := submitJob(t, env)

	env.manager.process(context.Background(), job.ID)

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "Failed to store generated video") {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if len(env.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d, want 1", len(env.ledger.refunds))
	}
	if env.ledger.balance != before {
		t.Errorf("balance = %s, want %s (conserved)", env.ledger.balance, before)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	env := newTestEnv(Config{})
	env.gen.artifact = []byte("x")
	env.gen.polls = []pollResult{
		{status: &provider.Status{State: provider.StateProcessing, Progress: 80}},
		{status: &provider.Status{State: provider.StateProcessing, Progress: 30}},
		{status: &provider.Status{State: provider.StateCompleted, Progress: 100}},
	}
	job := submitJob(t, env)

	env.manager.process(context.Background(), job.ID)

	log := env.jobs.progressLog[job.ID]
	prev := 0
	for _, p := range log {
		if p < prev {
			t.Fatalf("progress decreased: %v", log)
		}
		prev = p
	}
}

func TestCancelPendingRefunds(t *testing.T) {
	env := newTestEnv(Config{})
	job := submitJob(t, env)

	if err := env.manager.Cancel(context.Background(), "user-1", job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if len(env.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d, want 1", len(env.ledger.refunds))
	}
	if got2, want := env.ledger.balance, domain.CreditsFromFloat(100); got2 != want {
		t.Errorf("balance = %s, want %s", got2, want)
	}
	if err := env.manager.Cancel(context.Background(), "user-1", job.ID); !errors.Is(err, domain.ErrJobNotCancellable) {
		t.Errorf("second cancel err = %v, want ErrJobNotCancellable", err)
	}
}

func TestCancelDuringPollStopsWorker(t *testing.T) {
	env := newTestEnv(Config{})
	job := submitJob(t, env)

	// Flip the job to cancelled right after the first provider poll; the
	// next iteration's reload must exit the loop without polling again.
	env.gen.onPoll = func() {
		if env.gen.pollCalls > 1 {
			return
		}
		if err := env.manager.Cancel(context.Background(), "user-1", job.ID); err != nil {
			t.Errorf("Cancel: %v", err)
		}
	}

	env.manager.process(context.Background(), job.ID)

	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if env.gen.pollCalls != 1 {
		t.Errorf("provider polls = %d, want 1 (loop must stop after cancellation)", env.gen.pollCalls)
	}
	if len(env.gen.cancelled) != 1 || env.gen.cancelled[0] != "ext-1" {
		t.Errorf("provider cancel calls = %v, want [ext-1]", env.gen.cancelled)
	}
	if len(env.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d, want exactly 1", len(env.ledger.refunds))
	}
	if got2, want := env.ledger.balance, domain.CreditsFromFloat(100); got2 != want {
		t.Errorf("balance = %s, want %s", got2, want)
	}
}

func TestCancelOtherUsersJob(t *testing.T) {
	env := newTestEnv(Config{})
	job := submitJob(t, env)

	if err := env.manager.Cancel(context.Background(), "user-2", job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecoverFailsStaleJobs(t *testing.T) {
	env := newTestEnv(Config{})
	job := submitJob(t, env)
	env.jobs.mu.Lock()
	env.jobs.jobs[job.ID].Status = domain.JobStatusProcessing
	env.jobs.jobs[job.ID].UpdatedAt = env.clock.Now().Add(-24 * time.Hour)
	env.jobs.mu.Unlock()

	if err := env.manager.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	got, _ := env.jobs.GetByID(context.Background(), job.ID)
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "interrupted by restart") {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if len(env.ledger.refunds) != 1 {
		t.Errorf("refunds = %d, want 1", len(env.ledger.refunds))
	}
}

func TestQueueFullFailsAdmittedJob(t *testing.T) {
	env := newTestEnv(Config{QueueSize: 1})
	submitJob(t, env)

	_, err := env.manager.Generate(context.Background(), "user-1", GenerateInput{Provider: "sora", Prompt: "second"})
	if err == nil {
		t.Fatal("expected queue full error")
	}
	if len(env.ledger.refunds) != 1 {
		t.Errorf("refunds = %d, want 1 for the rejected job", len(env.ledger.refunds))
	}
	if got, want := env.ledger.balance, domain.CreditsFromFloat(99.25); got != want {
		t.Errorf("balance = %s, want %s", got, want)
	}
}
