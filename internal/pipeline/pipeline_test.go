package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/azhengyongqin/cardflow/internal/browser"
	"github.com/azhengyongqin/cardflow/internal/config"
	"github.com/azhengyongqin/cardflow/internal/linkmeta"
	"github.com/azhengyongqin/cardflow/internal/model"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// ---- 内存版仓储/协作方，测试共用 ----

type fakeCardRepo struct {
	mu    sync.Mutex
	cards map[string]*repository.Card
}

func newFakeCardRepo(cards ...*repository.Card) *fakeCardRepo {
	r := &fakeCardRepo{cards: map[string]*repository.Card{}}
	for _, c := range cards {
		cc := *c
		r.cards[c.CardID] = &cc
	}
	return r
}

func (r *fakeCardRepo) get(cardID string) (*repository.Card, error) {
	c, ok := r.cards[cardID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (r *fakeCardRepo) CreateCard(_ context.Context, card repository.Card) (repository.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc := card
	r.cards[card.CardID] = &cc
	return card, nil
}

func (r *fakeCardRepo) GetCard(_ context.Context, cardID string) (*repository.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return nil, err
	}
	cc := *c
	return &cc, nil
}

func (r *fakeCardRepo) UpdateStageStatus(_ context.Context, cardID string, stage model.StageKey, status model.StageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.ProcessingStatus = model.WithStageStatus(c.ProcessingStatus, stage, status)
	return nil
}

func (r *fakeCardRepo) SaveClassification(_ context.Context, cardID string, cardType model.CardType, normalizedContent, promotedURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.Type = cardType
	c.Content = normalizedContent
	if promotedURL != "" {
		c.URL = promotedURL
	}
	return nil
}

func (r *fakeCardRepo) SaveLinkPreview(_ context.Context, cardID string, preview repository.LinkPreview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.LinkPreview = &preview
	return nil
}

func (r *fakeCardRepo) SaveAIMetadata(_ context.Context, cardID string, summary string, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.AISummary = summary
	c.AITags = tags
	return nil
}

func (r *fakeCardRepo) SaveTranscript(_ context.Context, cardID string, transcript string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.AITranscript = transcript
	return nil
}

func (r *fakeCardRepo) SaveColors(_ context.Context, cardID string, colors []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.Colors = colors
	return nil
}

func (r *fakeCardRepo) SaveCategorization(_ context.Context, cardID string, category string, confidence float64, facts []repository.CategoryFact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.Category = category
	c.CategoryConfidence = &confidence
	c.CategoryFacts = facts
	return nil
}

func (r *fakeCardRepo) SaveThumbnail(_ context.Context, cardID string, thumbnailID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.ThumbnailID = thumbnailID
	return nil
}

func (r *fakeCardRepo) SaveScreenshot(_ context.Context, cardID string, screenshotID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.get(cardID)
	if err != nil {
		return err
	}
	c.ScreenshotID = screenshotID
	return nil
}

func (r *fakeCardRepo) ListCards(_ context.Context, _ repository.ListCardsFilter) ([]repository.Card, error) {
	return nil, nil
}

func (r *fakeCardRepo) CountCards(_ context.Context, _ repository.ListCardsFilter) (int, error) {
	return 0, nil
}

func (r *fakeCardRepo) ListCardsMissingAI(_ context.Context, limit int) ([]repository.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Card
	for _, c := range r.cards {
		if c.IsDeleted || c.HasAIMetadata() {
			continue
		}
		out = append(out, *c)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeCardRepo) ListCardsPendingCleanup(_ context.Context, olderThan time.Time, limit int) ([]repository.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repository.Card
	for _, c := range r.cards {
		if !c.IsDeleted || c.DeletedAt == nil || !c.DeletedAt.Before(olderThan) {
			continue
		}
		out = append(out, *c)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeCardRepo) DeleteCard(_ context.Context, cardID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cards[cardID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.cards, cardID)
	return nil
}

type fakeRunRepo struct {
	mu    sync.Mutex
	runs  map[string]*repository.WorkflowRun
	steps map[string]json.RawMessage
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{
		runs:  map[string]*repository.WorkflowRun{},
		steps: map[string]json.RawMessage{},
	}
}

func (r *fakeRunRepo) CreateRun(_ context.Context, runID, kind, cardID string) (repository.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run := repository.WorkflowRun{RunID: runID, Kind: kind, CardID: cardID, Attempt: 1, Status: repository.RunStatusPending}
	r.runs[runID] = &run
	return run, nil
}

func (r *fakeRunRepo) GetRun(_ context.Context, runID string) (*repository.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[runID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cc := *run
	return &cc, nil
}

func (r *fakeRunRepo) MarkRunning(_ context.Context, runID string) error {
	return r.setStatus(runID, repository.RunStatusRunning)
}

func (r *fakeRunRepo) MarkCompleted(_ context.Context, runID string, result json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[runID]; ok {
		run.Status = repository.RunStatusSuccess
		run.Result = result
	}
	return nil
}

func (r *fakeRunRepo) MarkFailed(_ context.Context, runID string, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[runID]; ok {
		run.Status = repository.RunStatusFail
		run.LastError = lastError
	}
	return nil
}

func (r *fakeRunRepo) setStatus(runID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[runID]; ok {
		run.Status = status
	}
	return nil
}

func (r *fakeRunRepo) GetStepResult(_ context.Context, runID, stepName string) (json.RawMessage, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.steps[runID+"/"+stepName]
	return raw, ok, nil
}

func (r *fakeRunRepo) SaveStepResult(_ context.Context, runID, stepName string, result json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[runID+"/"+stepName] = result
	return nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	failDel map[string]bool
	seq     int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}, failDel: map[string]bool{}}
}

func (s *fakeBlobStore) Put(_ context.Context, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("blob-%d", s.seq)
	s.objects[id] = data
	return id, nil
}

func (s *fakeBlobStore) GetURL(_ context.Context, storageID string) (string, error) {
	return "https://blobs.test/" + storageID, nil
}

func (s *fakeBlobStore) Get(_ context.Context, storageID string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[storageID]
	if !ok {
		return nil, "", fmt.Errorf("object %s not found", storageID)
	}
	return data, "application/octet-stream", nil
}

func (s *fakeBlobStore) Delete(_ context.Context, storageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel[storageID] {
		return fmt.Errorf("delete %s failed", storageID)
	}
	s.deleted = append(s.deleted, storageID)
	delete(s.objects, storageID)
	return nil
}

// fakeRenderer 按脚本回放截图结果
type fakeRenderer struct {
	mu       sync.Mutex
	attempts int
	script   []error // 每次 Screenshot 调用依次消费；nil 表示成功
}

func (f *fakeRenderer) Screenshot(_ context.Context, _ string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.attempts
	f.attempts++
	if idx < len(f.script) && f.script[idx] != nil {
		return nil, "", f.script[idx]
	}
	return []byte("jpeg-bytes"), "image/jpeg", nil
}

func (f *fakeRenderer) RenderPDFFirstPage(_ context.Context, _ string) ([]byte, string, error) {
	return []byte("png-bytes"), "image/png", nil
}

func (f *fakeRenderer) CaptureVideoFrame(_ context.Context, _ string) ([]byte, string, error) {
	return []byte("png-bytes"), "image/png", nil
}

type fakeAI struct {
	transcript    string
	transcribeErr error
}

func (fakeAI) Summarize(_ context.Context, _ string) (string, error) {
	return "一句话摘要", nil
}

func (fakeAI) SuggestTags(_ context.Context, _ string) ([]string, error) {
	return []string{"tag1", "tag2"}, nil
}

func (f fakeAI) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	if f.transcribeErr != nil {
		return "", f.transcribeErr
	}
	return f.transcript, nil
}

type fakeFetcher struct {
	result linkmeta.FetchResult
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (linkmeta.FetchResult, error) {
	if f.err != nil {
		return linkmeta.FetchResult{}, f.err
	}
	r := f.result
	if r.FinalURL == "" {
		r.FinalURL = pageURL
	}
	return r, nil
}

type enqueueCall struct {
	TaskType string
	Payload  asynqx.WorkflowPayload
	Delay    time.Duration
}

type fakeEnqueuer struct {
	mu      sync.Mutex
	calls   []enqueueCall
	failFor map[string]bool // card_id → 入队失败
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{failFor: map[string]bool{}}
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, taskType string, p asynqx.WorkflowPayload, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[p.CardID] {
		return fmt.Errorf("enqueue failed for %s", p.CardID)
	}
	f.calls = append(f.calls, enqueueCall{TaskType: taskType, Payload: p, Delay: delay})
	return nil
}

// recordingSleeper 记录等待时长，不真等
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{
		BackfillBatchSize: 50,
		CleanupBatchSize:  10,
		CleanupRetention:  30 * 24 * time.Hour,
	}
}

func newTestPipeline(cards *fakeCardRepo, opts ...func(*Deps)) (*Pipeline, *fakeBlobStore, *fakeRenderer, *recordingSleeper) {
	blobs := newFakeBlobStore()
	renderer := &fakeRenderer{}
	sleeper := &recordingSleeper{}
	deps := Deps{
		Cards:   cards,
		Runs:    newFakeRunRepo(),
		Blobs:   blobs,
		Browser: renderer,
		AI:      fakeAI{},
		Fetcher: &fakeFetcher{},
		Config:  testConfig(),
		Sleep:   sleeper.sleep,
	}
	for _, o := range opts {
		o(&deps)
	}
	return New(deps), blobs, renderer, sleeper
}

// rateLimitErr / httpErr 渲染服务错误的便捷构造
func rateLimitErr() error {
	return &browser.RetryableError{Kind: browser.KindRateLimit, StatusCode: 429, Message: "too many requests"}
}

func httpErr() error {
	return &browser.RetryableError{Kind: browser.KindHTTPError, StatusCode: 502, Message: "bad gateway"}
}
