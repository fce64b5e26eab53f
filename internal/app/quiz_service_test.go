package app_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mastery-quiz/internal/app"
	"mastery-quiz/internal/archive"
	"mastery-quiz/internal/catalog"
	"mastery-quiz/internal/domain"
	"mastery-quiz/internal/history"
	"mastery-quiz/internal/infra/memory"
	"mastery-quiz/internal/results"
)

type fixture struct {
	service   *app.QuizService
	selector  *app.Selector
	archive   *archive.Store
	history   *history.Tracker
	ledger    *results.Ledger
	generator *stubGenerator
	seeder    *stubSeeder
	now       time.Time
}

type stubGenerator struct {
	batch []domain.Question
	calls int
}

func (g *stubGenerator) GenerateBatch(_ context.Context, topic domain.Topic, count int) []domain.Question {
	g.calls++
	out := make([]domain.Question, 0, len(g.batch))
	for _, q := range g.batch {
		q.Topic = topic.ID
		out = append(out, q)
	}
	return out
}

type stubSeeder struct {
	archive *archive.Store
	calls   int
}

func (s *stubSeeder) Run(ctx context.Context, progress func(domain.SyncProgress)) (int, error) {
	s.calls++
	if progress != nil {
		progress(domain.SyncProgress{Current: 0, Target: 3, Topic: "Cloud Micro-Task"})
	}
	return s.archive.SaveQuestions(ctx, "cloud", questions("seed", 3))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := memory.NewKVStore()
	f := &fixture{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
	f.archive = archive.NewStore(kv, logger)
	f.history = history.NewTracker(kv, logger)
	f.ledger = results.NewLedger(kv, catalog.Default(), logger)
	f.generator = &stubGenerator{}
	f.seeder = &stubSeeder{archive: f.archive}
	f.selector = app.NewSelectorWithRand(f.archive, f.history, app.DefaultSelectorConfig(), logger, rand.New(rand.NewPCG(1, 2)))
	f.service = f.newService(f.generator, f.history)
	return f
}

func (f *fixture) newService(gen app.Generator, hist app.HistoryStore) *app.QuizService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.NewQuizServiceWithClock(app.Dependencies{
		Archive:   f.archive,
		History:   hist,
		Results:   f.ledger,
		Sessions:  memory.NewSessionStore(time.Hour),
		Generator: gen,
		Seeder:    f.seeder,
		Topics:    catalog.Default(),
		Selector:  f.selector,
		Logger:    logger,
	}, func() time.Time {
		f.now = f.now.Add(time.Second)
		return f.now
	})
}

func questions(prefix string, n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		out[i] = domain.Question{
			ID:            fmt.Sprintf("%s-%d", prefix, i),
			Text:          fmt.Sprintf("%s question %d", prefix, i),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: i % 4,
		}
	}
	return out
}

func texts(qs []domain.Question) []string {
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = q.Text
	}
	return out
}

func TestSelectFallsBackWhenAllSeen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pool := questions("cloud", 6)
	if _, err := f.archive.SaveQuestions(ctx, "cloud", pool); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := f.history.MarkAsSeen(ctx, append(texts(pool), "other topic question")); err != nil {
		t.Fatalf("mark seen: %v", err)
	}

	sel, err := f.selector.Select(ctx, domain.Single("cloud"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(sel.Questions) != 6 || !sel.HistoryReset {
		t.Fatalf("expected 6 questions after reset, got %d reset=%v", len(sel.Questions), sel.HistoryReset)
	}
	seen, _ := f.history.SeenTexts(ctx)
	if len(seen) != 0 {
		t.Fatalf("expected global history reset, still %d seen", len(seen))
	}
}

func TestSelectPrefersUnseen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pool := questions("sql", 12)
	_, _ = f.archive.SaveQuestions(ctx, "sql_syntax", pool)
	_ = f.history.MarkAsSeen(ctx, texts(pool[:4]))

	sel, err := f.selector.Select(ctx, domain.Single("sql_syntax"))
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.HistoryReset {
		t.Fatalf("did not expect a reset with 8 unseen questions")
	}
	if len(sel.Questions) != 8 {
		t.Fatalf("expected the 8 unseen questions, got %d", len(sel.Questions))
	}
	seen := map[string]bool{}
	for _, q := range pool[:4] {
		seen[q.Text] = true
	}
	for _, q := range sel.Questions {
		if seen[q.Text] {
			t.Fatalf("seen question %q was selected", q.Text)
		}
	}
}

func TestSelectLimitsSessionSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, _ = f.archive.SaveQuestions(ctx, "roi", questions("roi", 30))
	_, _ = f.archive.SaveQuestions(ctx, "ui", questions("ui", 30))

	single, err := f.selector.Select(ctx, domain.Single("roi"))
	if err != nil || len(single.Questions) != 10 {
		t.Fatalf("expected 10 single-topic questions, got %d err=%v", len(single.Questions), err)
	}
	mixed, err := f.selector.Select(ctx, domain.Mixed())
	if err != nil || len(mixed.Questions) != 20 {
		t.Fatalf("expected 20 mixed questions, got %d err=%v", len(mixed.Questions), err)
	}
	ids := map[string]bool{}
	for _, q := range mixed.Questions {
		if ids[q.ID] {
			t.Fatalf("duplicate question %s in draw", q.ID)
		}
		ids[q.ID] = true
	}
}

func TestSelectMixedUsesHigherThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, b := questions("a", 8), questions("b", 7)
	_, _ = f.archive.SaveQuestions(ctx, "cloud", a)
	_, _ = f.archive.SaveQuestions(ctx, "ethics", b)
	_ = f.history.MarkAsSeen(ctx, texts(a[:6]))

	sel, err := f.selector.Select(ctx, domain.Mixed())
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if !sel.HistoryReset || len(sel.Questions) != 15 {
		t.Fatalf("expected reset with the full pool of 15, got %d reset=%v", len(sel.Questions), sel.HistoryReset)
	}
}

func TestSelectEmptyArchiveNeedsGeneration(t *testing.T) {
	f := newFixture(t)
	sel, err := f.selector.Select(context.Background(), domain.Single("cloud"))
	if err != nil || !sel.NeedsGeneration || len(sel.Questions) != 0 {
		t.Fatalf("expected generation signal, got %+v err=%v", sel, err)
	}
}

func TestStartSessionGeneratesForEmptyTopic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.generator.batch = questions("gen", 4)

	session, err := f.service.StartSession(ctx, domain.Single("agentic_ai"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !session.Generated || len(session.Questions) != 4 || session.Title != "Agentic AI" {
		t.Fatalf("unexpected session %+v", session)
	}
	stored, _ := f.archive.Archive(ctx, "agentic_ai")
	if len(stored) != 4 {
		t.Fatalf("expected generated batch archived, got %d", len(stored))
	}
}

func TestStartSessionGenerationFailureLeavesArchiveEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.service.StartSession(ctx, domain.Single("cloud"))
	if !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	if f.generator.calls != 1 {
		t.Fatalf("expected one generation attempt, got %d", f.generator.calls)
	}
	counts, _ := f.archive.Stats(ctx)
	if len(counts) != 0 {
		t.Fatalf("expected no archives written, got %v", counts)
	}
}

func TestStartSessionMixedSeedsEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	session, err := f.service.StartSession(ctx, domain.Mixed())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.seeder.calls != 1 {
		t.Fatalf("expected seeding once, got %d", f.seeder.calls)
	}
	if session.TopicID != domain.MixedModeTopicID || session.Title != catalog.MixedSessionTitle || len(session.Questions) != 3 {
		t.Fatalf("unexpected mixed session %+v", session)
	}
}

func TestStartSessionRejectsUnknownTopic(t *testing.T) {
	f := newFixture(t)
	if _, err := f.service.StartSession(context.Background(), domain.Single("astrology")); !errors.Is(err, domain.ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestCompleteSessionRecordsResultAndHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pool := questions("db", 15)
	_, _ = f.archive.SaveQuestions(ctx, "database_rag", pool)

	session, err := f.service.StartSession(ctx, domain.Single("database_rag"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	done, err := f.service.CompleteSession(ctx, session.ID, 7)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Result.Total != 10 || done.Result.Score != 7 || done.Points != 70 || !done.Recorded {
		t.Fatalf("unexpected completion %+v", done)
	}

	seen, _ := f.history.SeenTexts(ctx)
	if len(seen) != 10 {
		t.Fatalf("expected exactly the 10 shown questions seen, got %d", len(seen))
	}
	for _, q := range session.Questions {
		if _, ok := seen[domain.Normalize(q.Text)]; !ok {
			t.Fatalf("shown question %q not marked seen", q.Text)
		}
	}

	if _, err := f.service.CompleteSession(ctx, session.ID, 7); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected second completion to fail, got %v", err)
	}
}

func TestCompleteSessionRejectsInvalidScore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.archive.SaveQuestions(ctx, "ui", questions("ui", 6))

	session, err := f.service.StartSession(ctx, domain.Single("ui"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.service.CompleteSession(ctx, session.ID, 99); !errors.Is(err, domain.ErrInvalidResult) {
		t.Fatalf("expected ErrInvalidResult, got %v", err)
	}
	if _, err := f.service.Session(ctx, session.ID); err != nil {
		t.Fatalf("expected session restored after rejected score, got %v", err)
	}
	if _, err := f.service.CompleteSession(ctx, session.ID, 6); err != nil {
		t.Fatalf("complete with valid score: %v", err)
	}
}

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.archive.SaveQuestions(ctx, "sql_syntax", questions("sql", 10))
	_, _ = f.archive.SaveQuestions(ctx, "cloud", questions("cloud", 4))

	for _, score := range []int{8, 5} {
		session, err := f.service.StartSession(ctx, domain.Single("sql_syntax"))
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if _, err := f.service.CompleteSession(ctx, session.ID, score); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	d, err := f.service.Dashboard(ctx)
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if d.Stats.TotalQuizzes != 2 || d.Stats.AvgScore != 65 || d.Stats.BestTopic != "SQL Syntax" {
		t.Fatalf("unexpected stats %+v", d.Stats)
	}
	if d.Points != 65 || d.ArchiveTotal != 14 || d.ArchiveCounts["cloud"] != 4 {
		t.Fatalf("unexpected dashboard %+v", d)
	}
}

func TestSyncAndMaintenance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var reports []domain.SyncProgress
	added, err := f.service.Sync(ctx, func(p domain.SyncProgress) { reports = append(reports, p) })
	if err != nil || added != 3 || len(reports) != 1 {
		t.Fatalf("unexpected sync added=%d reports=%v err=%v", added, reports, err)
	}

	_ = f.history.MarkAsSeen(ctx, []string{"x"})
	if err := f.service.ResetHistory(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	seen, _ := f.history.SeenTexts(ctx)
	if len(seen) != 0 {
		t.Fatalf("expected empty history")
	}

	if err := f.service.ClearArchive(ctx, "cloud"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if qs, _ := f.archive.Archive(ctx, "cloud"); len(qs) != 0 {
		t.Fatalf("expected cleared archive, got %d", len(qs))
	}
}

type flakyHistory struct {
	app.HistoryStore
	err error
}

func (h *flakyHistory) MarkAsSeen(ctx context.Context, texts []string) error {
	if h.err != nil {
		return h.err
	}
	return h.HistoryStore.MarkAsSeen(ctx, texts)
}

func TestCompleteSessionHistoryFailureKeepsSessionRetryable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, _ = f.archive.SaveQuestions(ctx, "cloud", questions("cloud", 6))
	hist := &flakyHistory{HistoryStore: f.history, err: errors.New("history unavailable")}
	service := f.newService(f.generator, hist)

	session, err := service.StartSession(ctx, domain.Single("cloud"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.CompleteSession(ctx, session.ID, 4); err == nil {
		t.Fatalf("expected history failure to surface")
	}
	if rs, _ := f.ledger.Results(ctx); len(rs) != 0 {
		t.Fatalf("expected no result recorded, got %v", rs)
	}

	hist.err = nil
	done, err := service.CompleteSession(ctx, session.ID, 4)
	if err != nil {
		t.Fatalf("retry complete: %v", err)
	}
	if !done.Recorded || done.Result.Total != 6 {
		t.Fatalf("unexpected completion %+v", done)
	}
	seen, _ := f.history.SeenTexts(ctx)
	if len(seen) != 6 {
		t.Fatalf("expected 6 seen texts, got %d", len(seen))
	}
}

type gatedGenerator struct {
	batch   []domain.Question
	started chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
	ctxErr  error
}

func (g *gatedGenerator) GenerateBatch(ctx context.Context, topic domain.Topic, count int) []domain.Question {
	g.calls.Add(1)
	g.once.Do(func() { close(g.started) })
	<-g.release
	g.ctxErr = ctx.Err()
	out := make([]domain.Question, 0, len(g.batch))
	for _, q := range g.batch {
		q.Topic = topic.ID
		out = append(out, q)
	}
	return out
}

func TestGenerationSurvivesFirstCallerCancel(t *testing.T) {
	f := newFixture(t)
	gen := &gatedGenerator{
		batch:   questions("gen", 5),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	service := f.newService(gen, f.history)

	type outcome struct {
		session *app.Session
		err     error
	}
	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan outcome, 1)
	go func() {
		s, err := service.StartSession(firstCtx, domain.Single("agentic_ai"))
		first <- outcome{s, err}
	}()
	<-gen.started

	second := make(chan outcome, 1)
	go func() {
		s, err := service.StartSession(context.Background(), domain.Single("agentic_ai"))
		second <- outcome{s, err}
	}()

	cancel()
	if got := <-first; !errors.Is(got.err, context.Canceled) {
		t.Fatalf("expected first caller canceled, got %v", got.err)
	}
	close(gen.release)

	got := <-second
	if got.err != nil {
		t.Fatalf("second caller: %v", got.err)
	}
	if len(got.session.Questions) != 5 {
		t.Fatalf("expected 5 questions, got %d", len(got.session.Questions))
	}
	if gen.calls.Load() != 1 {
		t.Fatalf("expected one provider call, got %d", gen.calls.Load())
	}
	if gen.ctxErr != nil {
		t.Fatalf("generation saw canceled context: %v", gen.ctxErr)
	}
	stored, _ := f.archive.Archive(context.Background(), "agentic_ai")
	if len(stored) != 5 {
		t.Fatalf("expected batch archived, got %d", len(stored))
	}
}

func TestGeneratedSessionDropsDuplicateTexts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	batch := questions("gen", 3)
	dup := batch[1]
	dup.ID = "gen-dup"
	dup.Text = "  GEN question 1 "
	f.generator.batch = append(batch, dup)

	session, err := f.service.StartSession(ctx, domain.Single("agentic_ai"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(session.Questions) != 3 {
		t.Fatalf("expected 3 distinct questions, got %v", texts(session.Questions))
	}
	stored, _ := f.archive.Archive(ctx, "agentic_ai")
	if len(stored) != 3 {
		t.Fatalf("expected 3 archived, got %d", len(stored))
	}
}
