package ingest

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unified-ai/core/internal/storage"
	"github.com/unified-ai/core/internal/vectorindex"
)

// embedPreviewLen bounds the text copy stored beside each vector, so
// search previews never need a row-store lookup.
const embedPreviewLen = 1000

// EmbedJob is one content row awaiting its vector.
type EmbedJob struct {
	ContentID  int64
	Text       string
	Source     storage.Source
	CapturedAt time.Time
}

// EmbedWorker writes embeddings after the row commit, on its own small
// pool so a slow or absent model never blocks ingestion. Writes are
// best-effort: a failed or dropped job leaves the content lexically
// searchable, which is the documented degradation, and the resync path
// can backfill later.
type EmbedWorker struct {
	index  vectorindex.Index
	logger *zap.Logger

	jobs chan EmbedJob
	wg   sync.WaitGroup

	failOnce sync.Once
}

// NewEmbedWorker builds a worker pool over index. A nil index yields a
// worker that drops every job, so callers need not branch.
func NewEmbedWorker(index vectorindex.Index, workers, queueLen int, logger *zap.Logger) *EmbedWorker {
	if workers <= 0 {
		workers = 2
	}
	if queueLen <= 0 {
		queueLen = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbedWorker{
		index:  index,
		logger: logger,
		jobs:   make(chan EmbedJob, queueLen),
	}
}

// Start launches the pool. Workers exit when ctx is cancelled or Close
// drains the queue.
func (w *EmbedWorker) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-w.jobs:
					if !ok {
						return
					}
					w.process(ctx, job)
				}
			}
		}()
	}
}

// Enqueue schedules a job without ever blocking the pipeline: when the
// queue is full the job is dropped and logged. The embedding is
// reconstructible from the store at any time.
func (w *EmbedWorker) Enqueue(job EmbedJob) {
	if w.index == nil {
		return
	}
	select {
	case w.jobs <- job:
	default:
		w.logger.Warn("embed queue full, dropping job",
			zap.Int64("content_id", job.ContentID))
	}
}

// Close stops accepting jobs and waits for in-flight ones.
func (w *EmbedWorker) Close() {
	close(w.jobs)
	w.wg.Wait()
}

func (w *EmbedWorker) process(ctx context.Context, job EmbedJob) {
	preview := job.Text
	if len(preview) > embedPreviewLen {
		preview = preview[:embedPreviewLen]
	}

	err := w.index.Upsert(ctx, []vectorindex.Document{{
		ID:   strconv.FormatInt(job.ContentID, 10),
		Text: preview,
		Metadata: map[string]string{
			"source":    string(job.Source),
			"timestamp": job.CapturedAt.UTC().Format(time.RFC3339),
		},
	}})
	if err != nil {
		w.failOnce.Do(func() {
			w.logger.Warn("embedding write failed, content remains lexically searchable",
				zap.Int64("content_id", job.ContentID), zap.Error(err))
		})
	}
}
