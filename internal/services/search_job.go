package services

import (
	"math"
	"time"

	"filterfinder/internal/config"
	"filterfinder/internal/estimator"
	"filterfinder/internal/filters"
	"filterfinder/internal/metrics"
	"filterfinder/internal/search"
)

// SearchStatus is the lifecycle state of a search job
type SearchStatus string

const (
	StatusQueued    SearchStatus = "queued"
	StatusRunning   SearchStatus = "running"
	StatusCompleted SearchStatus = "completed"
	StatusFailed    SearchStatus = "failed"
	StatusCancelled SearchStatus = "cancelled"
)

// Finished reports whether the job has reached a terminal state
func (s SearchStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseSearchStatus validates a status filter
func ParseSearchStatus(s string) (SearchStatus, bool) {
	switch status := SearchStatus(s); status {
	case StatusQueued, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// Report formats written for every searched family
const (
	ReportCSV         = "csv"
	ReportLeaderboard = "leaderboard"
	ReportJSON        = "json"
	ReportSummary     = "summary"
	ReportXLSX        = "xlsx"
)

// ReportFormats lists the report formats in the order they are written
func ReportFormats() []string {
	return []string{ReportCSV, ReportLeaderboard, ReportJSON, ReportSummary, ReportXLSX}
}

// reportFiles maps a report format to its file name inside a family directory
var reportFiles = map[string]string{
	ReportCSV:         config.ResultCSVFile,
	ReportLeaderboard: config.LeaderboardCSVFile,
	ReportJSON:        config.ResultJSONFile,
	ReportSummary:     config.SummaryFile,
	ReportXLSX:        config.WorkbookFile,
}

// SearchJob is the state of one asynchronous search as exposed by the API
type SearchJob struct {
	ID          string           `json:"id"`
	Status      SearchStatus     `json:"status"`
	Families    []filters.Family `json:"families"`
	Model       estimator.Name   `json:"model"`
	Metric      metrics.Name     `json:"metric"`
	P           int              `json:"p"`
	Q           *int             `json:"q,omitempty"`
	Points      int              `json:"points"`
	TraceID     string           `json:"trace_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`

	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`

	Progress map[filters.Family]search.ProgressSnapshot `json:"progress,omitempty"`
	Results  []FamilyResult                             `json:"results,omitempty"`
	Best     *FamilyResult                              `json:"best,omitempty"`
}

// FamilyResult summarises the winning candidate of one family
type FamilyResult struct {
	Family           filters.Family `json:"family"`
	BestParams       filters.Params `json:"best_params"`
	BestMetrics      metrics.Final  `json:"best_metrics"`
	Candidates       int            `json:"candidates"`
	TestRows         int            `json:"test_rows"`
	ModelSubstituted bool           `json:"model_substituted"`
	DurationSeconds  float64        `json:"duration_seconds"`
	Reports          []string       `json:"reports"`

	result *search.Result
}

// clone copies the job deeply enough that the store can keep mutating the
// original
func (j *SearchJob) clone() *SearchJob {
	c := *j
	c.Families = append([]filters.Family(nil), j.Families...)
	if j.Q != nil {
		q := *j.Q
		c.Q = &q
	}
	if j.Progress != nil {
		c.Progress = make(map[filters.Family]search.ProgressSnapshot, len(j.Progress))
		for k, v := range j.Progress {
			c.Progress[k] = v
		}
	}
	c.Results = append([]FamilyResult(nil), j.Results...)
	for i := range c.Results {
		c.Results[i].Reports = append([]string(nil), j.Results[i].Reports...)
	}
	if j.Best != nil {
		best := *j.Best
		c.Best = &best
	}
	return &c
}

// resultFor returns the family result, defaulting to the only family of a
// single-family search
func (j *SearchJob) resultFor(family filters.Family) (*FamilyResult, error) {
	if family == "" {
		if len(j.Results) != 1 {
			return nil, ErrFamilyRequired
		}
		return &j.Results[0], nil
	}
	for i := range j.Results {
		if j.Results[i].Family == family {
			return &j.Results[i], nil
		}
	}
	return nil, ErrFamilyNotInSearch
}

// bestAcrossFamilies picks the family whose winner scores best on metric.
// Undefined scores lose; ties keep the earlier family.
func bestAcrossFamilies(results []FamilyResult, metric metrics.Name) *FamilyResult {
	var best *FamilyResult
	bestScore := math.NaN()
	for i := range results {
		score := metric.Value(results[i].BestMetrics)
		if math.IsNaN(score) {
			if best == nil {
				best = &results[i]
			}
			continue
		}
		better := math.IsNaN(bestScore) ||
			(metric.Maximize() && score > bestScore) ||
			(!metric.Maximize() && score < bestScore)
		if better {
			best = &results[i]
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	out.Reports = append([]string(nil), best.Reports...)
	return &out
}
