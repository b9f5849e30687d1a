package api

import (
	"time"

	"github.com/rickgao/fmp-data/internal/model"
)

// Params narrows a fetch to a symbol batch and a time window.
type Params struct {
	Symbols []string  // Per-symbol sources: the batch to request
	From    time.Time // Windowed sources: first day to return (zero = provider default)
	To      time.Time // Windowed sources: last day to return (zero = today)
}

// Page is one decoded provider response.
type Page struct {
	Records  []model.Record
	Items    int    // Items in the payload, decoded or rejected
	Rejected int    // Items dropped for missing required fields or bad values
	Next     string // Cursor of the following page
	Done     bool   // No further pages
}
