package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/signalworks/visibility-cli/internal/config"
	"github.com/signalworks/visibility-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeQueue is an in-memory queue with claim semantics, doubling as the
// dispatcher's store so enqueued items land where the worker claims them.
type fakeQueue struct {
	mu           sync.Mutex
	items        map[string]*model.QueueItem
	prompts      []model.Prompt
	seq          int
	resetCalls   int
	enqueueCalls int
	enqueueErrOn map[int]bool // 1-based call index that should fail
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{items: make(map[string]*model.QueueItem)}
}

func (q *fakeQueue) seed(n int, subjectType model.SubjectType) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < n; i++ {
		q.seq++
		id := fmt.Sprintf("item-%03d", q.seq)
		q.items[id] = &model.QueueItem{
			ID:          id,
			SubjectID:   fmt.Sprintf("subject-%03d", q.seq),
			SubjectType: subjectType,
			Status:      model.QueueStatusPending,
		}
	}
}

func (q *fakeQueue) sortedIDs() []string {
	ids := make([]string, 0, len(q.items))
	for id := range q.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (q *fakeQueue) ClaimBatch(_ context.Context, limit, maxAttempts int) ([]model.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var claimed []model.QueueItem
	for _, id := range q.sortedIDs() {
		if len(claimed) == limit {
			break
		}
		it := q.items[id]
		eligible := it.Status == model.QueueStatusPending || it.Status == model.QueueStatusFailed
		if !eligible || it.Attempts >= maxAttempts {
			continue
		}
		it.Status = model.QueueStatusProcessing
		it.Attempts++
		it.UpdatedAt = time.Now()
		claimed = append(claimed, *it)
	}
	return claimed, nil
}

func (q *fakeQueue) MarkCompleted(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return eris.Errorf("queue item not found: %s", id)
	}
	it.Status = model.QueueStatusCompleted
	return nil
}

func (q *fakeQueue) MarkFailed(_ context.Context, id, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[id]
	if !ok {
		return eris.Errorf("queue item not found: %s", id)
	}
	it.Status = model.QueueStatusFailed
	it.ErrorMessage = errMsg
	return nil
}

// ResetStale honors the staleness window the way the real store does: a
// freshly claimed item is not stale, so one worker's RESET_STALE step never
// reverts another worker's in-flight claims.
func (q *fakeQueue) ResetStale(_ context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetCalls++
	cutoff := time.Now().Add(-olderThan)
	n := 0
	for _, it := range q.items {
		if it.Status == model.QueueStatusProcessing && it.UpdatedAt.Before(cutoff) {
			it.Status = model.QueueStatusPending
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) CountEligible(_ context.Context, maxAttempts int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		eligible := it.Status == model.QueueStatusPending || it.Status == model.QueueStatusFailed
		if eligible && it.Attempts < maxAttempts {
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) ListUnprocessedPrompts(_ context.Context, _ string, limit, offset int) ([]model.Prompt, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if offset >= len(q.prompts) {
		return nil, nil
	}
	end := min(offset+limit, len(q.prompts))
	return q.prompts[offset:end], nil
}

func (q *fakeQueue) Enqueue(_ context.Context, items []model.QueueItem) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueueCalls++
	if q.enqueueErrOn[q.enqueueCalls] {
		return "", eris.New("insert failed")
	}
	batchID := fmt.Sprintf("batch-%d", q.enqueueCalls)
	for _, item := range items {
		q.seq++
		item.ID = fmt.Sprintf("item-%03d", q.seq)
		item.Status = model.QueueStatusPending
		item.BatchID = batchID
		cp := item
		q.items[item.ID] = &cp
	}
	return batchID, nil
}

func (q *fakeQueue) countByStatus(status model.QueueStatus) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, it := range q.items {
		if it.Status == status {
			n++
		}
	}
	return n
}

// recordingExec records execution order and fails the IDs it is told to.
type recordingExec struct {
	mu       sync.Mutex
	executed []string
	failFor  map[string]error
}

func (e *recordingExec) Execute(_ context.Context, item model.QueueItem) error {
	e.mu.Lock()
	e.executed = append(e.executed, item.ID)
	e.mu.Unlock()
	if err, ok := e.failFor[item.ID]; ok {
		return err
	}
	return nil
}

func (e *recordingExec) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.executed)
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		BatchSize:               5,
		MaxBatchesPerInvocation: 2,
		MaxAttempts:             3,
		StaleAfterSecs:          300,
		MaxGenerations:          5,
	}
}

func promptExecutors(exec Executor) map[model.SubjectType]Executor {
	return map[model.SubjectType]Executor{model.SubjectPrompt: exec}
}

func TestWorkerDrainsQueue(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(3, model.SubjectPrompt)
	exec := &recordingExec{}

	var invoked []int
	w := New(queue, testWorkerConfig(), promptExecutors(exec),
		WithInvoker(func(gen int) { invoked = append(invoked, gen) }))

	require.NoError(t, w.Run(context.Background(), 0))

	assert.Equal(t, 3, exec.count())
	assert.Equal(t, 3, queue.countByStatus(model.QueueStatusCompleted))
	assert.Empty(t, invoked, "drained queue must not chain a successor")
}

func TestWorkerBatchBudgetFiresOneSuccessor(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(12, model.SubjectPrompt)
	exec := &recordingExec{}

	var invoked []int
	w := New(queue, testWorkerConfig(), promptExecutors(exec),
		WithInvoker(func(gen int) { invoked = append(invoked, gen) }))

	require.NoError(t, w.Run(context.Background(), 0))

	// Two batches of five leave two items for the successor.
	assert.Equal(t, 10, exec.count())
	assert.Equal(t, 10, queue.countByStatus(model.QueueStatusCompleted))
	assert.Equal(t, 2, queue.countByStatus(model.QueueStatusPending))
	assert.Equal(t, []int{1}, invoked)
}

func TestWorkerChainsUntilDrained(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(12, model.SubjectPrompt)
	exec := &recordingExec{}

	var invoked []int
	var w *Worker
	w = New(queue, testWorkerConfig(), promptExecutors(exec),
		WithInvoker(func(gen int) {
			invoked = append(invoked, gen)
			require.NoError(t, w.Run(context.Background(), gen))
		}))

	require.NoError(t, w.Run(context.Background(), 0))

	assert.Equal(t, 12, queue.countByStatus(model.QueueStatusCompleted))
	assert.Equal(t, []int{1}, invoked)
}

func TestWorkerGenerationBudgetCapsChaining(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(12, model.SubjectPrompt)
	exec := &recordingExec{}

	cfg := testWorkerConfig()
	cfg.MaxGenerations = 1

	var invoked []int
	w := New(queue, cfg, promptExecutors(exec),
		WithInvoker(func(gen int) { invoked = append(invoked, gen) }))

	require.NoError(t, w.Run(context.Background(), 0))

	assert.Equal(t, 10, exec.count())
	assert.Empty(t, invoked, "generation budget of one means no successors")
	assert.Equal(t, 2, queue.countByStatus(model.QueueStatusPending))
}

func TestWorkerFailedItemStaysReclaimable(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(2, model.SubjectPrompt)
	exec := &recordingExec{failFor: map[string]error{"item-001": eris.New("provider exploded")}}

	var invoked []int
	w := New(queue, testWorkerConfig(), promptExecutors(exec),
		WithInvoker(func(gen int) { invoked = append(invoked, gen) }))

	require.NoError(t, w.Run(context.Background(), 0))

	// A failed item below max attempts is claim-eligible immediately, so
	// the second batch of the same invocation retries it: two attempts in,
	// still failed, one attempt of budget left.
	queue.mu.Lock()
	failed := queue.items["item-001"]
	queue.mu.Unlock()
	assert.Equal(t, model.QueueStatusFailed, failed.Status)
	assert.Contains(t, failed.ErrorMessage, "provider exploded")
	assert.Equal(t, 2, failed.Attempts)
	assert.Equal(t, 1, queue.countByStatus(model.QueueStatusCompleted))
	assert.Equal(t, 3, exec.count(), "failing item executed in both batches")

	// Attempt budget is not exhausted, so a successor still fires.
	assert.Equal(t, []int{1}, invoked)
}

func TestWorkerRoutesBySubjectType(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(2, model.SubjectPrompt)
	queue.seed(3, model.SubjectResponse)

	promptExec := &recordingExec{}
	responseExec := &recordingExec{}
	w := New(queue, testWorkerConfig(), map[model.SubjectType]Executor{
		model.SubjectPrompt:   promptExec,
		model.SubjectResponse: responseExec,
	}, WithInvoker(func(int) {}))

	require.NoError(t, w.Run(context.Background(), 0))

	assert.Equal(t, 2, promptExec.count())
	assert.Equal(t, 3, responseExec.count())
}

func TestWorkerUnknownSubjectTypeFails(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(1, model.SubjectType("mystery"))

	w := New(queue, testWorkerConfig(), promptExecutors(&recordingExec{}),
		WithInvoker(func(int) {}))

	require.NoError(t, w.Run(context.Background(), 0))

	queue.mu.Lock()
	it := queue.items["item-001"]
	queue.mu.Unlock()
	assert.Equal(t, model.QueueStatusFailed, it.Status)
	assert.Contains(t, it.ErrorMessage, "no executor")
}

func TestWorkerRecoversStaleItems(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(1, model.SubjectPrompt)
	queue.mu.Lock()
	queue.items["item-001"].Status = model.QueueStatusProcessing
	queue.mu.Unlock()

	exec := &recordingExec{}
	w := New(queue, testWorkerConfig(), promptExecutors(exec), WithInvoker(func(int) {}))

	require.NoError(t, w.Run(context.Background(), 0))

	// ResetStale runs before the first claim, so the stuck item is executed.
	assert.Equal(t, 1, exec.count())
	assert.Equal(t, 1, queue.countByStatus(model.QueueStatusCompleted))
}

func TestWorkerCancelledContext(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	queue.seed(5, model.SubjectPrompt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := New(queue, testWorkerConfig(), promptExecutors(&recordingExec{}),
		WithInvoker(func(int) {}))

	err := w.Run(ctx, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func seedPrompts(queue *fakeQueue, n int) {
	for i := 0; i < n; i++ {
		queue.prompts = append(queue.prompts, model.Prompt{
			ID:        fmt.Sprintf("prompt-%03d", i+1),
			ProjectID: "proj-1",
			Active:    true,
		})
	}
}

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{PageSize: 2, ChunkSize: 2, Workers: 2}
}

func TestDispatcherEnqueuesAndDrains(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	seedPrompts(queue, 5)
	exec := &recordingExec{}

	cfg := testWorkerConfig()
	cfg.MaxBatchesPerInvocation = 10
	w := New(queue, cfg, promptExecutors(exec), WithInvoker(func(int) {}))
	d := NewDispatcher(queue, w, testDispatchConfig())

	enqueued, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, enqueued)
	assert.Equal(t, 5, queue.countByStatus(model.QueueStatusCompleted))
	assert.Equal(t, 5, exec.count())
}

func TestDispatcherForegroundChainingDrainsAll(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	seedPrompts(queue, 12)
	exec := &recordingExec{}

	// Same wiring as the one-shot CLI path: the batch budget alone covers
	// only 10 of 12 items, the rest must drain through successor
	// generations before Run returns.
	var w *Worker
	w = New(queue, testWorkerConfig(), promptExecutors(exec),
		WithInvoker(func(gen int) {
			require.NoError(t, w.Run(context.Background(), gen))
		}))
	d := NewDispatcher(queue, w, config.DispatchConfig{PageSize: 50, ChunkSize: 50, Workers: 1})

	enqueued, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, enqueued)
	assert.Equal(t, 12, queue.countByStatus(model.QueueStatusCompleted))
	assert.Equal(t, 12, exec.count())
}

func TestDispatcherTolerateChunkFailure(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	seedPrompts(queue, 6)
	queue.enqueueErrOn = map[int]bool{2: true}
	exec := &recordingExec{}

	cfg := testWorkerConfig()
	cfg.MaxBatchesPerInvocation = 10
	w := New(queue, cfg, promptExecutors(exec), WithInvoker(func(int) {}))
	d := NewDispatcher(queue, w, testDispatchConfig())

	enqueued, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, enqueued, "a failed chunk is skipped, not fatal")
	assert.Equal(t, 4, queue.countByStatus(model.QueueStatusCompleted))
}

func TestDispatcherNoPromptsSkipsWorkers(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	w := New(queue, testWorkerConfig(), promptExecutors(&recordingExec{}),
		WithInvoker(func(int) {}))
	d := NewDispatcher(queue, w, testDispatchConfig())

	enqueued, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, enqueued)
	assert.Zero(t, queue.resetCalls, "no workers launched when nothing was enqueued")
}

func TestDispatcherAllChunksFail(t *testing.T) {
	t.Parallel()
	queue := newFakeQueue()
	seedPrompts(queue, 3)
	queue.enqueueErrOn = map[int]bool{1: true, 2: true}

	w := New(queue, testWorkerConfig(), promptExecutors(&recordingExec{}),
		WithInvoker(func(int) {}))
	d := NewDispatcher(queue, w, testDispatchConfig())

	_, err := d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every enqueue chunk failed")
}
