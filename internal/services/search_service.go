package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"filterfinder/internal/config"
	apierrors "filterfinder/internal/errors"
	"filterfinder/internal/files"
	"filterfinder/internal/filters"
	"filterfinder/internal/infrastructure"
	"filterfinder/internal/report"
	"filterfinder/internal/search"
	"filterfinder/internal/timeseries"
)

// ProgressBroadcaster pushes search lifecycle events to connected clients
type ProgressBroadcaster interface {
	BroadcastProgress(ctx context.Context, searchID string, snapshot search.ProgressSnapshot)
	BroadcastStatus(ctx context.Context, searchID, status, message string)
	BroadcastComplete(ctx context.Context, searchID string, summary interface{})
	BroadcastFailed(ctx context.Context, searchID, status, message string)
}

// SearchRequest describes one search. Zero values of the engine fields fall
// back to the service defaults.
type SearchRequest struct {
	// Family is a filter family name or "all"
	Family string
	P      int
	Q      *int

	ModelName         string
	MetricName        string
	ValidationPercent float64
	Processes         int
	StrictModel       *bool

	Series *timeseries.Series
}

// SearchService runs filter searches asynchronously, at most MaxConcurrent at
// a time, and keeps their state and reports
type SearchService struct {
	defaults    search.Config
	paths       *config.Paths
	store       *SearchStore
	broadcaster ProgressBroadcaster
	metrics     *infrastructure.BusinessMetrics
	logger      *slog.Logger
	timeout     time.Duration
	now         func() time.Time

	slots chan struct{}

	baseCtx  context.Context
	stopAll  context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	stopping bool
}

// NewSearchService wires the search engine to the job store. broadcaster and
// metrics may be nil.
func NewSearchService(cfg *config.Config, paths *config.Paths, broadcaster ProgressBroadcaster, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *SearchService {
	if logger == nil {
		logger = slog.Default()
	}

	maxConcurrent := cfg.Search.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	baseCtx, stopAll := context.WithCancel(context.Background())

	logger.Info("SearchService initialized",
		slog.String("reports_dir", paths.ReportsDir),
		slog.Int("max_concurrent", maxConcurrent),
		slog.Duration("operation_timeout", cfg.Server.OperationTimeout),
		slog.String("default_model", cfg.Search.ModelName),
		slog.String("default_metric", cfg.Search.MetricName))

	return &SearchService{
		defaults:    cfg.SearchConfig(),
		paths:       paths,
		store:       NewSearchStore(),
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.With(slog.String("service", "search")),
		timeout:     cfg.Server.OperationTimeout,
		now:         time.Now,
		slots:       make(chan struct{}, maxConcurrent),
		baseCtx:     baseCtx,
		stopAll:     stopAll,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Start validates req, queues the search and returns its job without waiting
// for the search to run. Configuration errors, including an unknown model in
// strict mode, are returned synchronously.
func (s *SearchService) Start(ctx context.Context, req SearchRequest) (*SearchJob, error) {
	if req.Series == nil || req.Series.Len() == 0 {
		return nil, ErrEmptySeries
	}

	families, err := ParseFamilies(req.Family)
	if err != nil {
		return nil, err
	}

	cfg := s.engineConfig(req)
	id := uuid.New().String()

	finder, err := search.NewFinder(cfg, s.logger,
		search.WithProgressObserver(s.observer(id)))
	if err != nil {
		return nil, err
	}

	// reject lag orders before the job is queued
	if req.P < 0 {
		return nil, search.ValidationError{Field: "p", Message: "must not be negative", Value: req.P}
	}
	if req.Q != nil && *req.Q < 0 {
		return nil, search.ValidationError{Field: "q", Message: "must not be negative", Value: *req.Q}
	}

	job := &SearchJob{
		ID:        id,
		Status:    StatusQueued,
		Families:  families,
		Model:     finder.Model(),
		Metric:    finder.Metric(),
		P:         req.P,
		Q:         req.Q,
		Points:    req.Series.Len(),
		TraceID:   infrastructure.GetTraceID(ctx),
		CreatedAt: s.now(),
		Progress:  make(map[filters.Family]search.ProgressSnapshot),
	}

	jobCtx, cancel, err := s.register(id, trace.SpanContextFromContext(ctx), job.TraceID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(job); err != nil {
		s.release(id)
		cancel()
		return nil, err
	}

	s.logger.InfoContext(ctx, "search queued",
		slog.String("search_id", id),
		slog.Any("families", families),
		slog.String("model", string(job.Model)),
		slog.String("metric", string(job.Metric)),
		slog.Int("points", job.Points))
	s.broadcastStatus(jobCtx, id, StatusQueued, "search queued")

	snapshot := job.clone()
	s.wg.Add(1)
	go s.run(jobCtx, cancel, finder, job, req.Series)

	return snapshot, nil
}

// ParseFamilies resolves a family name, or "all" and the empty string to
// every family in search order
func ParseFamilies(name string) ([]filters.Family, error) {
	if name == "" || strings.EqualFold(name, "all") {
		return filters.Families(), nil
	}
	family, err := filters.ParseFamily(name)
	if err != nil {
		return nil, search.ValidationError{Field: "family", Message: err.Error(), Value: name}
	}
	return []filters.Family{family}, nil
}

// engineConfig overlays the request's fields on the service defaults
func (s *SearchService) engineConfig(req SearchRequest) search.Config {
	cfg := s.defaults
	if req.ModelName != "" {
		cfg.ModelName = req.ModelName
	}
	if req.MetricName != "" {
		cfg.MetricName = req.MetricName
	}
	if req.ValidationPercent != 0 {
		cfg.ValidationPercent = req.ValidationPercent
	}
	if req.Processes != 0 {
		cfg.Processes = req.Processes
	}
	if req.StrictModel != nil {
		cfg.StrictModel = *req.StrictModel
	}
	return cfg
}

// register creates the job context. The request's span context is carried
// over so the engine's spans join the request trace.
func (s *SearchService) register(id string, parent trace.SpanContext, traceID string) (context.Context, context.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return nil, nil, ErrServiceStopped
	}

	ctx := infrastructure.WithSearchID(s.baseCtx, id)
	if parent.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, parent)
	}
	if traceID != "" {
		ctx = infrastructure.WithTraceID(ctx, traceID)
	}

	var cancel context.CancelFunc
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	s.cancels[id] = cancel
	return ctx, cancel, nil
}

func (s *SearchService) release(id string) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

// run executes every family of the job in order and writes its reports
func (s *SearchService) run(ctx context.Context, cancel context.CancelFunc, finder *search.Finder, job *SearchJob, series *timeseries.Series) {
	defer s.wg.Done()
	defer s.release(job.ID)
	defer cancel()

	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		s.finish(ctx, job.ID, nil, ctx.Err())
		return
	}
	defer func() { <-s.slots }()

	started := s.now()
	s.store.Update(job.ID, func(j *SearchJob) {
		j.Status = StatusRunning
		j.StartedAt = &started
	})
	s.broadcastStatus(ctx, job.ID, StatusRunning, "search started")
	s.logger.InfoContext(ctx, "search started", slog.Any("families", job.Families))

	var results []FamilyResult
	for _, family := range job.Families {
		result, err := s.runFamily(ctx, finder, job, family, series)
		if err != nil {
			s.logger.ErrorContext(ctx, "family search failed",
				slog.String("family", string(family)),
				slog.String("error", err.Error()))
			s.finish(ctx, job.ID, nil, err)
			return
		}
		results = append(results, *result)
	}

	s.finish(ctx, job.ID, results, nil)
}

// runFamily searches one family and writes its reports
func (s *SearchService) runFamily(ctx context.Context, finder *search.Finder, job *SearchJob, family filters.Family, series *timeseries.Series) (*FamilyResult, error) {
	ctx = infrastructure.WithFamily(ctx, string(family))
	infrastructure.RecordActiveSearchChange(ctx, s.metrics, 1, string(family))
	start := time.Now()

	result, err := finder.Search(ctx, family, series, job.P, job.Q)

	duration := time.Since(start)
	infrastructure.RecordActiveSearchChange(ctx, s.metrics, -1, string(family))
	infrastructure.RecordSearchJobMetrics(ctx, s.metrics, string(family), string(finder.Model()), series.Len(), duration, err)
	if err != nil {
		return nil, err
	}

	reports, err := s.writeReports(job.ID, result)
	if err != nil {
		return nil, err
	}

	return &FamilyResult{
		Family:           family,
		BestParams:       result.BestParams,
		BestMetrics:      result.BestMetrics,
		Candidates:       len(result.Leaderboard),
		TestRows:         result.YTest.Len(),
		ModelSubstituted: result.ModelSubstituted,
		DurationSeconds:  duration.Seconds(),
		Reports:          reports,
		result:           result,
	}, nil
}

// writeReports saves every report format of result under the search's
// report directory and returns the formats written
func (s *SearchService) writeReports(searchID string, result *search.Result) ([]string, error) {
	dir, err := s.familyDir(searchID, result.Family)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apierrors.NewAppError(apierrors.ErrTypeStorage, "create report directory", err).
			WithContext("dir", dir)
	}

	writers := map[string]func(*search.Result, string) error{
		ReportCSV:         report.SaveToCSV,
		ReportLeaderboard: report.SaveLeaderboardCSV,
		ReportJSON:        report.SaveToJSON,
		ReportSummary:     report.SaveSummaryReport,
		ReportXLSX:        report.SaveToXLSX,
	}

	formats := ReportFormats()
	for _, format := range formats {
		path := filepath.Join(dir, reportFiles[format])
		if err := writers[format](result, path); err != nil {
			return nil, apierrors.NewAppError(apierrors.ErrTypeStorage, "write "+format+" report", err).
				WithContext("path", path)
		}
	}
	return formats, nil
}

func (s *SearchService) familyDir(searchID string, family filters.Family) (string, error) {
	dir, err := s.paths.SearchReportDir(searchID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, string(family)), nil
}

// finish moves the job to its terminal state and notifies clients
func (s *SearchService) finish(ctx context.Context, id string, results []FamilyResult, err error) {
	completed := s.now()
	var snapshot *SearchJob

	s.store.Update(id, func(j *SearchJob) {
		j.CompletedAt = &completed
		switch {
		case err == nil:
			j.Status = StatusCompleted
			j.Results = results
			j.Best = bestAcrossFamilies(results, j.Metric)
		case errors.Is(err, context.Canceled):
			j.Status = StatusCancelled
			j.Error = "search was cancelled"
			j.ErrorType = apierrors.TypeCancelled
		case errors.Is(err, context.DeadlineExceeded):
			j.Status = StatusFailed
			j.Error = "search exceeded the operation timeout"
			j.ErrorType = apierrors.TypeTimeout
		default:
			j.Status = StatusFailed
			j.Error = err.Error()
			j.ErrorType = apierrors.TypeInternal
			if problem, ok := apierrors.MapSearchError(err, ""); ok {
				j.ErrorType = problem.Type
			}
		}
		snapshot = j.clone()
	})
	if snapshot == nil {
		return
	}

	// the job context may already be done; events still go out
	notifyCtx := context.WithoutCancel(ctx)
	if snapshot.Status == StatusCompleted {
		s.logger.InfoContext(notifyCtx, "search completed",
			slog.String("search_id", id),
			slog.Int("families", len(results)))
		if s.broadcaster != nil {
			s.broadcaster.BroadcastComplete(notifyCtx, id, snapshot)
		}
		return
	}

	s.logger.WarnContext(notifyCtx, "search ended without result",
		slog.String("search_id", id),
		slog.String("status", string(snapshot.Status)),
		slog.String("error", snapshot.Error))
	if s.broadcaster != nil {
		s.broadcaster.BroadcastFailed(notifyCtx, id, string(snapshot.Status), snapshot.Error)
	}
}

// observer records progress on the job and forwards it to clients
func (s *SearchService) observer(id string) search.ProgressObserver {
	return func(ctx context.Context, snapshot search.ProgressSnapshot) {
		s.store.Update(id, func(j *SearchJob) {
			j.Progress[filters.Family(snapshot.Family)] = snapshot
		})
		if s.broadcaster != nil {
			s.broadcaster.BroadcastProgress(ctx, id, snapshot)
		}
	}
}

func (s *SearchService) broadcastStatus(ctx context.Context, id string, status SearchStatus, message string) {
	if s.broadcaster != nil {
		s.broadcaster.BroadcastStatus(ctx, id, string(status), message)
	}
}

// Get returns the current state of a search
func (s *SearchService) Get(ctx context.Context, id string) (*SearchJob, error) {
	return s.store.Get(id)
}

// List returns searches newest first
func (s *SearchService) List(ctx context.Context, filter SearchFilter) []*SearchJob {
	return s.store.List(filter)
}

// Result returns the full engine result of one family of a completed search.
// family may be empty for single-family searches.
func (s *SearchService) Result(ctx context.Context, id string, family filters.Family) (*search.Result, error) {
	job, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrSearchNotFinished, job.Status)
	}
	fr, err := job.resultFor(family)
	if err != nil {
		return nil, err
	}
	return fr.result, nil
}

// ReportPath returns the file holding one report of a completed search
func (s *SearchService) ReportPath(ctx context.Context, id string, family filters.Family, format string) (string, error) {
	name, ok := reportFiles[format]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownReportFormat, format)
	}

	job, err := s.store.Get(id)
	if err != nil {
		return "", err
	}
	if job.Status != StatusCompleted {
		return "", fmt.Errorf("%w: status is %s", ErrSearchNotFinished, job.Status)
	}
	fr, err := job.resultFor(family)
	if err != nil {
		return "", err
	}

	dir, err := s.familyDir(id, fr.Family)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if !config.FileExists(path) {
		return "", apierrors.NewAppError(apierrors.ErrTypeNotFound, "report file is missing", nil).
			WithContext("path", path)
	}
	return path, nil
}

// Cancel stops a queued or running search
func (s *SearchService) Cancel(ctx context.Context, id string) error {
	job, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if job.Status.Finished() {
		return fmt.Errorf("%w: status is %s", ErrSearchFinished, job.Status)
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}

	s.logger.InfoContext(ctx, "search cancellation requested", slog.String("search_id", id))
	return nil
}

// Prune removes finished searches older than retention together with their
// report directories and returns how many were removed
func (s *SearchService) Prune(ctx context.Context, retention time.Duration) int {
	removed := s.store.CleanupOld(s.now(), retention)
	for _, id := range removed {
		dir, err := s.paths.SearchReportDir(id)
		if err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			s.logger.WarnContext(ctx, "failed to remove report directory",
				slog.String("search_id", id),
				slog.String("dir", dir),
				slog.String("error", err.Error()))
		}
	}
	if len(removed) > 0 {
		s.logger.InfoContext(ctx, "pruned finished searches", slog.Int("count", len(removed)))
	}
	return len(removed) + s.pruneOrphans(ctx, retention)
}

// pruneOrphans removes report directories older than retention that no
// stored search owns, such as those left by a previous process
func (s *SearchService) pruneOrphans(ctx context.Context, retention time.Duration) int {
	dirs, err := files.NewDiscovery("").ListDirectories(s.paths.ReportsDir)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to list report directories", slog.String("error", err.Error()))
		return 0
	}

	removed := 0
	for _, dir := range files.ModifiedBefore(dirs, s.now().Add(-retention)) {
		if _, err := s.store.Get(dir.Name); err == nil {
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			s.logger.WarnContext(ctx, "failed to remove orphaned report directory",
				slog.String("dir", dir.Path),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "pruned orphaned report directories", slog.Int("count", removed))
	}
	return removed
}

// Stats returns the number of searches per status
func (s *SearchService) Stats() map[string]int {
	return s.store.Stats()
}

// ActiveCount returns the number of queued and running searches
func (s *SearchService) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

// Accepting reports whether new searches are accepted
func (s *SearchService) Accepting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.stopping
}

// Shutdown cancels every search and waits for the workers to exit or ctx to
// expire
func (s *SearchService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()
	s.stopAll()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "search service stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for searches to stop: %w", ctx.Err())
	}
}
