package orders

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/taxpoint/internal/apperr"
	"github.com/sells-group/taxpoint/internal/model"
	"github.com/sells-group/taxpoint/internal/taxrate"
)

// Import tuning. Parallel compute kicks in above the threshold; insert and
// compute batches bound memory; the progress gate requires both a row count
// and an elapsed interval.
const (
	parallelImportThreshold = 100
	parallelImportChunks    = 5
	bulkInsertBatchSize     = 500
	computeBatchSize        = 1000
	progressUpdateRows      = 1000
	progressUpdateInterval  = 2 * time.Second

	finalizeTimeout = 30 * time.Second
)

// ObjectStore is the object-storage surface the executor consumes.
type ObjectStore interface {
	UploadBytes(ctx context.Context, objectName string, content []byte, contentType string) error
	DownloadToFile(ctx context.Context, objectName, path string) error
	ObjectURL(objectName string) string
	ExtractObjectName(filePath string) (string, error)
}

// Importer runs CSV import tasks: it owns submission, startup resumption and
// the per-task worker loop.
type Importer struct {
	orders   *OrderStore
	tasks    *TaskStore
	resolver Resolver
	catalog  taxrate.Lookuper
	storage  ObjectStore
	rdb      redis.Cmdable // nil disables the rate cache

	baseCtx context.Context
	wg      sync.WaitGroup
	log     *zap.Logger
}

// NewImporter wires the executor. Workers run on baseCtx, so request
// cancellation never interrupts an import; shutting baseCtx down triggers
// finalization of every running task.
func NewImporter(baseCtx context.Context, orders *OrderStore, tasks *TaskStore,
	resolver Resolver, catalog taxrate.Lookuper, storage ObjectStore, rdb redis.Cmdable) *Importer {
	return &Importer{
		orders:   orders,
		tasks:    tasks,
		resolver: resolver,
		catalog:  catalog,
		storage:  storage,
		rdb:      rdb,
		baseCtx:  baseCtx,
		log:      zap.L().With(zap.String("component", "importer")),
	}
}

// Submit counts rows, uploads the file, creates the task record and
// schedules a background worker. Returns immediately with the new task.
func (i *Importer) Submit(ctx context.Context, fileBytes []byte, filename, contentType string, userID int64) (*model.FileTask, error) {
	totalRows := CountRows(fileBytes)

	objectName := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + filepath.Base(filename)
	if err := i.storage.UploadBytes(ctx, objectName, fileBytes, contentType); err != nil {
		return nil, eris.Wrap(err, "importer: upload")
	}

	task, err := i.tasks.Create(ctx, userID, i.storage.ObjectURL(objectName), totalRows)
	if err != nil {
		return nil, err
	}

	i.spawn(task.ID, fileBytes)
	return task, nil
}

// ResumeOnStartup re-adopts every task still in progress, oldest first.
func (i *Importer) ResumeOnStartup(ctx context.Context) (int, error) {
	pending, err := i.tasks.ListInProgress(ctx)
	if err != nil {
		return 0, err
	}
	for _, task := range pending {
		i.log.Info("resuming import task",
			zap.Int64("task_id", task.ID),
			zap.Int("successful_rows", task.SuccessfulRows),
			zap.Int("failed_rows", task.FailedRows))
		i.spawn(task.ID, nil)
	}
	return len(pending), nil
}

// Wait blocks until every running worker has finalized.
func (i *Importer) Wait() { i.wg.Wait() }

func (i *Importer) spawn(taskID int64, source []byte) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.Run(i.baseCtx, taskID, source)
	}()
}

// Run is the worker body for one task. Per-row failures become failed-row
// counts; task-level failures are logged; either way the task reaches
// completed and partial progress persists.
func (i *Importer) Run(ctx context.Context, taskID int64, source []byte) {
	task, err := i.tasks.Get(ctx, taskID)
	if err != nil {
		i.log.Error("load task", zap.Int64("task_id", taskID), zap.Error(err))
		return
	}
	if task.Status == model.TaskStatusCompleted {
		return
	}

	processed := task.SuccessfulRows + task.FailedRows

	// Per-run catalog wrapper. Hydration failure downgrades to the base
	// catalog; the cache never fails an import.
	lookup := i.catalog
	var cached *taxrate.CachedCatalog
	if i.rdb != nil {
		cached, err = taxrate.NewCachedCatalog(ctx, i.rdb, i.catalog)
		if err != nil {
			i.log.Warn("rate cache hydration failed", zap.Int64("task_id", taskID), zap.Error(err))
			cached = nil
		} else {
			lookup = cached
		}
	}
	calc := NewCalculator(i.resolver, lookup)

	successful := task.SuccessfulRows
	failed := task.FailedRows
	var pendingOrders []*Computed
	pendingFailed := 0
	rowsSinceUpdate := 0
	lastUpdate := time.Now()

	var tempPath string
	defer func() {
		i.finalize(taskID, task.UserID, &successful, &failed, &pendingOrders, &pendingFailed, cached, tempPath)
	}()

	reader, closeFile, err := i.openSource(ctx, task, source, &tempPath)
	if err != nil {
		i.log.Error("open import source", zap.Int64("task_id", taskID), zap.Error(err))
		return
	}
	defer closeFile()

	header, err := reader.Read()
	if err != nil {
		i.log.Error("read csv header", zap.Int64("task_id", taskID), zap.Error(err))
		return
	}
	cols, err := ResolveImportColumns(header)
	if err != nil {
		i.log.Error("resolve csv columns", zap.Int64("task_id", taskID), zap.Error(err))
		return
	}

	parallel := task.TotalRows-processed > parallelImportThreshold
	i.log.Info("import task started",
		zap.Int64("task_id", taskID),
		zap.Int("total_rows", task.TotalRows),
		zap.Int("resume_offset", processed),
		zap.Bool("parallel", parallel))

	// flushInserts promotes the pending buffers into the durable counters.
	flushInserts := func(ctx context.Context) error {
		if len(pendingOrders) > 0 {
			if _, err := i.orders.BulkInsert(ctx, task.UserID, pendingOrders); err != nil {
				return err
			}
			successful += len(pendingOrders)
			pendingOrders = pendingOrders[:0]
		}
		failed += pendingFailed
		pendingFailed = 0
		return nil
	}

	absorb := func(outcomes []rowOutcome) error {
		for _, out := range outcomes {
			if out.computed != nil {
				pendingOrders = append(pendingOrders, out.computed)
			} else {
				pendingFailed++
			}
			rowsSinceUpdate++

			if len(pendingOrders) >= bulkInsertBatchSize {
				if err := flushInserts(ctx); err != nil {
					return err
				}
			}
			if rowsSinceUpdate >= progressUpdateRows && time.Since(lastUpdate) >= progressUpdateInterval {
				i.writeProgress(ctx, taskID, successful, failed, model.TaskStatusInProgress)
				rowsSinceUpdate = 0
				lastUpdate = time.Now()
			}
		}
		return nil
	}

	var batch []numberedRow
	rowNum := 0
	for {
		if ctx.Err() != nil {
			i.log.Warn("import cancelled", zap.Int64("task_id", taskID))
			return
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			i.log.Error("read csv row", zap.Int64("task_id", taskID), zap.Error(err))
			return
		}

		rowNum++
		if rowNum <= processed {
			continue
		}

		batch = append(batch, numberedRow{num: rowNum, record: record})
		if len(batch) >= computeBatchSize {
			if err := absorb(i.processBatch(ctx, calc, cols, batch, parallel)); err != nil {
				i.log.Error("persist batch", zap.Int64("task_id", taskID), zap.Error(err))
				return
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := absorb(i.processBatch(ctx, calc, cols, batch, parallel)); err != nil {
			i.log.Error("persist batch", zap.Int64("task_id", taskID), zap.Error(err))
			return
		}
	}
}

type numberedRow struct {
	num    int
	record []string
}

type rowOutcome struct {
	row      int
	computed *Computed // nil marks a failed row
}

// processBatch computes one batch, in parallel round-robin chunks when
// enabled, and returns outcomes re-sorted by source row number.
func (i *Importer) processBatch(ctx context.Context, calc *Calculator, cols ImportColumns, batch []numberedRow, parallel bool) []rowOutcome {
	if !parallel || len(batch) <= parallelImportChunks {
		return i.computeRows(calc, cols, batch)
	}

	chunks := make([][]numberedRow, parallelImportChunks)
	for idx, row := range batch {
		c := idx % parallelImportChunks
		chunks[c] = append(chunks[c], row)
	}

	results := make([][]rowOutcome, parallelImportChunks)
	g, _ := errgroup.WithContext(ctx)
	for c := range chunks {
		g.Go(func() error {
			results[c] = i.computeRows(calc, cols, chunks[c])
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]rowOutcome, 0, len(batch))
	for _, part := range results {
		outcomes = append(outcomes, part...)
	}
	sort.Slice(outcomes, func(a, b int) bool { return outcomes[a].row < outcomes[b].row })
	return outcomes
}

func (i *Importer) computeRows(calc *Calculator, cols ImportColumns, rows []numberedRow) []rowOutcome {
	outcomes := make([]rowOutcome, 0, len(rows))
	for _, row := range rows {
		computed, err := computeRow(calc, cols, row.record)
		if err != nil {
			i.log.Debug("row failed",
				zap.Int("row", row.num),
				zap.String("kind", apperr.KindOf(err).String()),
				zap.String("detail", apperr.DetailOf(err)))
			outcomes = append(outcomes, rowOutcome{row: row.num})
			continue
		}
		outcomes = append(outcomes, rowOutcome{row: row.num, computed: computed})
	}
	return outcomes
}

func computeRow(calc *Calculator, cols ImportColumns, record []string) (*Computed, error) {
	input, err := ParseRow(record, cols)
	if err != nil {
		return nil, err
	}
	return calc.Compute(input.Latitude, input.Longitude, input.Timestamp, input.Subtotal)
}

// finalize runs on every exit path with a fresh bounded context: flush the
// pending buffers, flush the rate cache, mark the task completed and remove
// the temp file.
func (i *Importer) finalize(taskID, userID int64, successful, failed *int,
	pendingOrders *[]*Computed, pendingFailed *int, cached *taxrate.CachedCatalog, tempPath string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if len(*pendingOrders) > 0 {
		if _, err := i.orders.BulkInsert(ctx, userID, *pendingOrders); err != nil {
			i.log.Error("final bulk insert", zap.Int64("task_id", taskID), zap.Error(err))
		} else {
			*successful += len(*pendingOrders)
		}
		*pendingOrders = nil
	}
	*failed += *pendingFailed
	*pendingFailed = 0

	if cached != nil && i.rdb != nil {
		if err := cached.Flush(ctx, i.rdb); err != nil {
			i.log.Warn("rate cache flush failed", zap.Int64("task_id", taskID), zap.Error(err))
		}
	}

	i.writeProgress(ctx, taskID, *successful, *failed, model.TaskStatusCompleted)

	if tempPath != "" {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			i.log.Warn("remove temp file", zap.String("path", tempPath), zap.Error(err))
		}
	}

	i.log.Info("import task finalized",
		zap.Int64("task_id", taskID),
		zap.Int("successful_rows", *successful),
		zap.Int("failed_rows", *failed))
}

// writeProgress updates the task counters. A vanished task is a no-op.
func (i *Importer) writeProgress(ctx context.Context, taskID int64, successful, failed int, status string) {
	err := i.tasks.UpdateProgress(ctx, taskID, successful, failed, status)
	if err == nil {
		return
	}
	if apperr.KindOf(err) == apperr.KindNotFound {
		i.log.Warn("task vanished during progress write", zap.Int64("task_id", taskID))
		return
	}
	i.log.Error("progress write failed", zap.Int64("task_id", taskID), zap.Error(err))
}

// openSource yields a CSV reader over the in-memory bytes when supplied, or
// downloads the stored object to a temp file otherwise.
func (i *Importer) openSource(ctx context.Context, task *model.FileTask, source []byte, tempPath *string) (*csv.Reader, func(), error) {
	if source != nil {
		reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(source, utf8BOM)))
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		return reader, func() {}, nil
	}

	objectName, err := i.storage.ExtractObjectName(task.FilePath)
	if err != nil {
		return nil, nil, err
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("taxpoint-import-%d-%s", task.ID, filepath.Base(objectName)))
	if err := i.storage.DownloadToFile(ctx, objectName, path); err != nil {
		return nil, nil, eris.Wrap(err, "importer: download object")
	}
	*tempPath = path

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "importer: open temp file")
	}
	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	return reader, func() { _ = f.Close() }, nil
}
