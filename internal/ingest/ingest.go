package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/gorecall-mcp/internal/embedder"
	"github.com/dshills/gorecall-mcp/pkg/types"
)

// DefaultMaxErrors caps how many failure messages a run retains
const DefaultMaxErrors = 20

// ErrIngestInProgress is returned when a run is already active on this
// Ingester. Runs are serialized per store; a second caller fails fast
// instead of queueing.
var ErrIngestInProgress = errors.New("ingestion already in progress")

// Store is the slice of the tiered vector store ingestion writes to
type Store interface {
	Add(ctx context.Context, frag *types.VectorFragment) error
}

// FragmentInput describes one fragment to ingest. Content is the text
// that gets embedded; FullContent is carried for display only.
type FragmentInput struct {
	ID          string // assigned a UUID when blank
	Title       string
	Content     string
	FullContent string
	Tags        []string
	Metadata    map[string]string
}

// Config contains configuration for an ingestion run
type Config struct {
	Workers   int // concurrent embedding batches (default: runtime.NumCPU())
	MaxErrors int // retained error messages (default: DefaultMaxErrors)
}

// Statistics contains statistics about an ingestion run
type Statistics struct {
	FragmentsAdded      int
	FragmentsFailed     int
	EmbeddingsGenerated int
	Duration            time.Duration
	ErrorMessages       []string // earliest failures, capped at Config.MaxErrors
}

// Ingester coordinates the ingestion pipeline: embed -> store
type Ingester struct {
	embedder embedder.Embedder
	store    Store
	lock     ingestLock
}

// New creates a new Ingester instance
func New(emb embedder.Embedder, store Store) *Ingester {
	return &Ingester{
		embedder: emb,
		store:    store,
	}
}

// IngestFragments embeds and stores the given fragments. Inputs are
// deduped by ID (last write wins), blank IDs get UUIDs, and the work is
// split into embedder-sized batches processed concurrently. Individual
// failures are recorded in the statistics and do not abort the run;
// only cancellation or a concurrent run fail the whole operation.
func (ing *Ingester) IngestFragments(ctx context.Context, inputs []FragmentInput, config *Config) (*Statistics, error) {
	if config == nil {
		config = &Config{
			Workers:   runtime.NumCPU(),
			MaxErrors: DefaultMaxErrors,
		}
	}
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = DefaultMaxErrors
	}

	if !ing.lock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer ing.lock.Release()

	startTime := time.Now()

	// Track progress with atomic counters
	var (
		added    int32
		failed   int32
		embedded int32
	)

	var mu sync.Mutex // protects errorMessages
	errorMessages := make([]string, 0)
	record := func(msg string) {
		mu.Lock()
		if len(errorMessages) < config.MaxErrors {
			errorMessages = append(errorMessages, msg)
		}
		mu.Unlock()
	}

	// Reject empty content up front so one bad item cannot fail its
	// whole embedding batch
	prepared := dedupeInputs(inputs)
	valid := make([]FragmentInput, 0, len(prepared))
	for _, in := range prepared {
		if strings.TrimSpace(in.Content) == "" {
			atomic.AddInt32(&failed, 1)
			record(fmt.Sprintf("%s: empty content", in.ID))
			continue
		}
		valid = append(valid, in)
	}

	batchSize := ing.embedder.BatchSize()
	if batchSize <= 0 {
		batchSize = 1
	}

	// Worker pool bounded by semaphore, errors propagated via errgroup
	semaphore := make(chan struct{}, config.Workers)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < len(valid); i += batchSize {
		end := i + batchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[i:end]

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			ing.ingestBatch(gctx, batch, &added, &failed, &embedded, record)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Statistics{
		FragmentsAdded:      int(added),
		FragmentsFailed:     int(failed),
		EmbeddingsGenerated: int(embedded),
		Duration:            time.Since(startTime),
		ErrorMessages:       errorMessages,
	}, nil
}

// ingestBatch embeds one batch and adds each fragment to the store.
// An embed failure fails every fragment in the batch; add failures are
// recorded per fragment.
func (ing *Ingester) ingestBatch(ctx context.Context, batch []FragmentInput,
	added, failed, embedded *int32, record func(string)) {

	texts := make([]string, len(batch))
	for i, in := range batch {
		texts[i] = in.Content
	}

	resp, err := ing.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		atomic.AddInt32(failed, int32(len(batch)))
		record(fmt.Sprintf("embed batch of %d: %v", len(batch), err))
		return
	}

	atomic.AddInt32(embedded, int32(len(resp.Embeddings)))

	// Add in input order; the provider returns embeddings aligned with
	// the request texts
	for i, in := range batch {
		frag := &types.VectorFragment{
			ID:          in.ID,
			Title:       in.Title,
			Content:     in.Content,
			FullContent: in.FullContent,
			Tags:        in.Tags,
			Metadata:    in.Metadata,
			Vector:      resp.Embeddings[i].Vector,
		}

		if err := ing.store.Add(ctx, frag); err != nil {
			atomic.AddInt32(failed, 1)
			record(fmt.Sprintf("%s: %v", in.ID, err))
			continue
		}
		atomic.AddInt32(added, 1)
	}
}

// dedupeInputs drops duplicate IDs keeping the last occurrence at the
// first occurrence's position, and assigns UUIDs to blank IDs.
func dedupeInputs(inputs []FragmentInput) []FragmentInput {
	ordered := make([]FragmentInput, 0, len(inputs))
	index := make(map[string]int, len(inputs))

	for _, in := range inputs {
		if in.ID == "" {
			in.ID = uuid.NewString()
			ordered = append(ordered, in)
			continue
		}
		if pos, seen := index[in.ID]; seen {
			ordered[pos] = in
			continue
		}
		index[in.ID] = len(ordered)
		ordered = append(ordered, in)
	}

	return ordered
}
