package model

import (
	"strings"
	"time"
)

// -----------------------------------------------------------------------------
// Entity Types
// -----------------------------------------------------------------------------

// FieldKind is the semantic type of an entity field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindInteger
	KindDecimal
	KindBool
	KindDate
	KindTimestamp
)

var kindNames = map[FieldKind]string{
	KindString:    "string",
	KindNumber:    "number",
	KindInteger:   "integer",
	KindDecimal:   "decimal",
	KindBool:      "bool",
	KindDate:      "date",
	KindTimestamp: "timestamp",
}

func (k FieldKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsTemporal reports whether values of this kind are time.Time.
func (k FieldKind) IsTemporal() bool {
	return k == KindDate || k == KindTimestamp
}

// FieldDef describes one column of an entity type.
type FieldDef struct {
	Name     string    // Column name
	Key      string    // Provider JSON key (defaults to Name)
	Kind     FieldKind // Semantic type
	Required bool      // Record is rejected when the provider omits it
}

// ProviderKey returns the JSON key the provider uses for this field.
func (f FieldDef) ProviderKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

// Source describes how an entity type is fetched from the provider.
type Source int

const (
	// SourceList is a listing endpoint walked page by page.
	SourceList Source = iota

	// SourcePerSymbol is an endpoint called once per symbol (or symbol batch).
	SourcePerSymbol
)

func (s Source) String() string {
	if s == SourcePerSymbol {
		return "per_symbol"
	}
	return "list"
}

// Reference is a foreign-key column pointing at another entity's natural key.
type Reference struct {
	Column string // Column in this entity
	Entity string // Referenced entity id (single-column natural key)
}

// EntityType is one category of financial data with its own schema and dependencies.
type EntityType struct {
	ID         string
	Table      string      // Table name (defaults to ID)
	Fields     []FieldDef  // Ordered column layout
	Key        []string    // Natural key columns
	DependsOn  []string    // Entities that must be created and populated first
	References []Reference // Foreign keys (subset of DependsOn)

	// TimeSeries entities are append-only and keyed by (SymbolField, TimeField).
	TimeSeries  bool
	TimeField   string
	SymbolField string

	// Provider endpoint.
	Source    Source
	Endpoint  string            // Path; "{symbol}" is replaced for per-symbol sources
	Query     map[string]string // Fixed query parameters
	ItemsPath string            // JSON key holding the item array ("" = top-level array)
	Paged     bool              // List endpoint accepts page/limit
	Windowed  bool              // Endpoint accepts from/to dates

	// SymbolsFrom names the entity whose keys form the symbol universe
	// for per-symbol sources.
	SymbolsFrom string

	// SymbolBatch > 1 lets several symbols share one request (comma-joined).
	SymbolBatch int
}

// TableName returns the table this entity is persisted to.
func (e *EntityType) TableName() string {
	if e.Table != "" {
		return e.Table
	}
	return e.ID
}

// Field returns the definition of the named field.
func (e *EntityType) Field(name string) (FieldDef, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// FieldIndex returns the position of the named field, or -1.
func (e *EntityType) FieldIndex(name string) int {
	for i, f := range e.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// TimeGranule is the step added to a watermark to get the next fetch window start.
func (e *EntityType) TimeGranule() time.Duration {
	if f, ok := e.Field(e.TimeField); ok && f.Kind == KindDate {
		return 24 * time.Hour
	}
	return time.Second
}

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Record is a single decoded unit from the provider.
type Record struct {
	Entity string
	Symbol string
	Values map[string]any // Field name -> raw decoded value (nil = JSON null)
	Seq    int64          // Fetch order within a run; later wins on duplicate keys
}

// NormalizeSymbol upper-cases and trims a provider ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// -----------------------------------------------------------------------------
// Import Jobs
// -----------------------------------------------------------------------------

// JobStatus is the lifecycle state of an ImportJob.
type JobStatus string

const (
	StatusPending           JobStatus = "pending"
	StatusRunning           JobStatus = "running"
	StatusSucceeded         JobStatus = "succeeded"
	StatusPartial           JobStatus = "partial"
	StatusFailed            JobStatus = "failed"
	StatusSkippedDependency JobStatus = "skipped-dependency"
	StatusCancelled         JobStatus = "cancelled"
)

// Terminal reports whether no further transitions follow this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusPartial, StatusFailed, StatusSkippedDependency, StatusCancelled:
		return true
	}
	return false
}

// ImportJob is one execution attempt of importing a single entity type.
type ImportJob struct {
	RunID       string    `json:"run_id"`
	Entity      string    `json:"entity"`
	Status      JobStatus `json:"status"`
	Cursor      string    `json:"cursor,omitempty"`
	Fetched     int64     `json:"fetched"`
	Written     int64     `json:"written"`
	Skipped     int64     `json:"skipped_duplicate"`
	Rejected    int64     `json:"rejected"`
	Pages       int64     `json:"pages"`
	FailedPages int64     `json:"failed_pages"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// JobEvent is emitted on every ImportJob status transition.
type JobEvent struct {
	From JobStatus `json:"from"`
	Job  ImportJob `json:"job"`
	At   time.Time `json:"at"`
}

// Checkpoint is the durable resume point of an interrupted import.
type Checkpoint struct {
	Entity string
	Cursor string
	RunID  string

	// Page counts of the interrupted job up to Cursor. Pages skipped
	// before Cursor are not fetched again, so a resumed job inherits
	// them and cannot finish as succeeded.
	CommittedPages int64
	FailedPages    int64

	UpdatedAt time.Time
}
