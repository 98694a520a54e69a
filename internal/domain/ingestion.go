package domain

import "time"

// LoadTimestampColumn is the column stamped on every normalized row.
const LoadTimestampColumn = "dat_load"

// ResultsField is the nested array-of-records field every raw document carries.
const ResultsField = "results"

// TableSpec identifies one destination table and its merge key.
// It is created from the table registry at process start and never mutated.
//
// PartitionHint names a column the destination is partitioned by once it is
// first created; files written by later merges follow that partitioning.
type TableSpec struct {
	Name          string `yaml:"name" json:"name"`
	MatchKey      string `yaml:"match_key,omitempty" json:"match_key,omitempty"`
	PartitionHint string `yaml:"partition,omitempty" json:"partition,omitempty"`
}

// HasMatchKey reports whether the table can be merged.
func (s TableSpec) HasMatchKey() bool { return s.MatchKey != "" }

// Verdict is the outcome of probing a destination for committed data.
type Verdict string

// Probe outcomes.
const (
	VerdictEmpty       Verdict = "EMPTY"
	VerdictPopulated   Verdict = "POPULATED"
	VerdictProbeFailed Verdict = "PROBE_FAILED"
)

// IsNew reports whether the destination should be treated as a new table
// (full overwrite). A failed probe is never new.
func (v Verdict) IsNew() bool { return v == VerdictEmpty }

// Stage is a step of the per-table ingestion state machine.
type Stage string

// Pipeline stages, in execution order, plus the two terminal states.
const (
	StageLoadSchema     Stage = "LOAD_SCHEMA"
	StageReadRaw        Stage = "READ_RAW"
	StageNormalize      Stage = "NORMALIZE"
	StageProbeExistence Stage = "PROBE_EXISTENCE"
	StageWrite          Stage = "WRITE"
	StageDone           Stage = "DONE"
	StageFailed         Stage = "FAILED"
)

// RunStatus is the terminal status of a table run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFailed  RunStatus = "FAILED"
)

// Column is a named, typed column of a relation.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RawRecordSet is the as-read data for a table, held as an engine relation
// with a single nested results column.
type RawRecordSet struct {
	Table         string
	Relation      string
	RowCount      int64
	ElementFields []Column // fields of each results element, in schema order
}

// NormalizedRecordSet holds flat, deduplicated records stamped with the run's
// load timestamp, held as an engine relation.
type NormalizedRecordSet struct {
	Table    string
	Relation string
	Columns  []Column
	RowCount int64
	LoadedAt time.Time
}

// HasColumn reports whether the record set carries a column with the given name.
func (r *NormalizedRecordSet) HasColumn(name string) bool {
	for _, c := range r.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// WriteResult describes the outcome of a Table Writer call.
type WriteResult struct {
	Op              WriteOp
	RowsWritten     int64     // row count of the destination after the write
	Manifest        *Manifest // nil unless regenerated
	ManifestWarning error     // set when manifest regeneration failed after a merge
}

// ManifestFile is one entry of a table manifest.
type ManifestFile struct {
	Path       string `json:"path"`
	SizeBytes  int64  `json:"size_bytes"`
	DeleteFile string `json:"delete_file,omitempty"`
}

// Manifest lists a destination table's current data files for consumers that
// cannot read the table's transaction log.
type Manifest struct {
	Table       string         `json:"table"`
	Schema      string         `json:"schema"`
	GeneratedAt time.Time      `json:"generated_at"`
	RowCount    int64          `json:"row_count"`
	Files       []ManifestFile `json:"files"`
	Location    string         `json:"-"`
}

// TableRun is the result of running one table through the pipeline.
type TableRun struct {
	ID             string
	BatchID        string
	Table          string
	Stage          Stage // last stage entered; DONE or FAILED when finished
	FailedStage    Stage // stage that failed, empty on success
	Status         RunStatus
	Verdict        Verdict
	RowsNormalized int64
	RowsWritten    int64
	Err            error
	Warning        error
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Failed reports whether the run ended in the FAILED state.
func (r *TableRun) Failed() bool { return r.Status == RunStatusFailed }

// BatchResult aggregates the table runs of a batch in registry order.
type BatchResult struct {
	ID   string
	Runs []*TableRun
}

// FailedCount returns the number of failed table runs.
func (b *BatchResult) FailedCount() int {
	n := 0
	for _, r := range b.Runs {
		if r.Failed() {
			n++
		}
	}
	return n
}

// IngestionRun is the persisted ledger record of a table run.
type IngestionRun struct {
	ID              string     `json:"id"`
	BatchID         string     `json:"batch_id"`
	Table           string     `json:"table"`
	Stage           Stage      `json:"stage"`
	Status          RunStatus  `json:"status"`
	Verdict         *Verdict   `json:"verdict,omitempty"`
	ErrorKind       *string    `json:"error_kind,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	ManifestWarning *string    `json:"manifest_warning,omitempty"`
	RowsNormalized  *int64     `json:"rows_normalized,omitempty"`
	RowsWritten     *int64     `json:"rows_written,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// IngestionRunFilter narrows IngestionRunRepository.List.
type IngestionRunFilter struct {
	Table string
	Limit int
}

// TableRunSummary is the serialized form of a TableRun used by the CLI's
// JSON output and the HTTP API.
type TableRunSummary struct {
	ID             string    `json:"id"`
	Table          string    `json:"table"`
	Status         RunStatus `json:"status"`
	Stage          Stage     `json:"stage"`
	FailedStage    Stage     `json:"failed_stage,omitempty"`
	Verdict        Verdict   `json:"verdict,omitempty"`
	RowsNormalized int64     `json:"rows_normalized"`
	RowsWritten    int64     `json:"rows_written"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	Error          string    `json:"error,omitempty"`
	Warning        string    `json:"warning,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Summary returns the serialized form of the run.
func (r *TableRun) Summary() TableRunSummary {
	s := TableRunSummary{
		ID:             r.ID,
		Table:          r.Table,
		Status:         r.Status,
		Stage:          r.Stage,
		FailedStage:    r.FailedStage,
		Verdict:        r.Verdict,
		RowsNormalized: r.RowsNormalized,
		RowsWritten:    r.RowsWritten,
		ErrorKind:      ErrorKind(r.Err),
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	if r.Warning != nil {
		s.Warning = r.Warning.Error()
	}
	return s
}

// BatchSummary is the serialized form of a BatchResult.
type BatchSummary struct {
	BatchID string            `json:"batch_id"`
	Tables  int               `json:"tables"`
	Failed  int               `json:"failed"`
	Runs    []TableRunSummary `json:"runs"`
}

// Summary returns the serialized form of the batch.
func (b *BatchResult) Summary() BatchSummary {
	s := BatchSummary{
		BatchID: b.ID,
		Tables:  len(b.Runs),
		Failed:  b.FailedCount(),
		Runs:    make([]TableRunSummary, 0, len(b.Runs)),
	}
	for _, r := range b.Runs {
		s.Runs = append(s.Runs, r.Summary())
	}
	return s
}
