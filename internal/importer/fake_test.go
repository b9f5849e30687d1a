package importer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/fmp-data/internal/api"
	"github.com/rickgao/fmp-data/internal/auth"
	"github.com/rickgao/fmp-data/internal/catalog"
	"github.com/rickgao/fmp-data/internal/model"
	"github.com/rickgao/fmp-data/internal/storage"
	"github.com/rickgao/fmp-data/internal/writer"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var testSymbols = []string{"AAA", "BBB", "CCC", "DDD", "EEE", "FFF", "GGG", "HHH", "III"}

var testDates = []string{"2024-01-02", "2024-01-03", "2024-01-04"}

// testCatalog is declared out of dependency order on purpose.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	bars := &model.EntityType{
		ID: "daily_bar",
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "date", Kind: model.KindDate, Required: true},
			{Name: "close", Kind: model.KindDecimal, Required: true},
			{Name: "volume", Kind: model.KindInteger},
		},
		Key:         []string{"symbol", "date"},
		DependsOn:   []string{"symbols"},
		References:  []model.Reference{{Column: "symbol", Entity: "symbols"}},
		TimeSeries:  true,
		TimeField:   "date",
		SymbolField: "symbol",
		Source:      model.SourcePerSymbol,
		Endpoint:    "/bars/{symbol}",
		ItemsPath:   "historical",
		Windowed:    true,
		SymbolsFrom: "symbols",
		SymbolBatch: 1,
	}
	profile := &model.EntityType{
		ID: "company_profile",
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "company_name", Key: "companyName", Kind: model.KindString},
		},
		Key:         []string{"symbol"},
		DependsOn:   []string{"symbols"},
		References:  []model.Reference{{Column: "symbol", Entity: "symbols"}},
		Source:      model.SourcePerSymbol,
		Endpoint:    "/profile/{symbol}",
		SymbolsFrom: "symbols",
		SymbolBatch: 2,
	}
	exchanges := &model.EntityType{
		ID: "exchanges",
		Fields: []model.FieldDef{
			{Name: "code", Kind: model.KindString, Required: true},
			{Name: "name", Kind: model.KindString},
		},
		Key:      []string{"code"},
		Source:   model.SourceList,
		Endpoint: "/exchanges",
	}
	symbols := &model.EntityType{
		ID: "symbols",
		Fields: []model.FieldDef{
			{Name: "symbol", Kind: model.KindString, Required: true},
			{Name: "name", Kind: model.KindString},
			{Name: "exchange_short_name", Key: "exchangeShortName", Kind: model.KindString},
			{Name: "type", Kind: model.KindString},
		},
		Key:      []string{"symbol"},
		Source:   model.SourceList,
		Endpoint: "/symbols",
		Paged:    true,
	}

	cat, err := catalog.New(bars, profile, exchanges, symbols)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return cat
}

// fakeFMP serves the test catalog's endpoints. With page size 2 the
// symbol list spans five pages (page 0..4).
type fakeFMP struct {
	mu       sync.Mutex
	requests []string
	hook     func(r *http.Request) (status int, body string, handled bool)
}

func (f *fakeFMP) setHook(h func(r *http.Request) (int, string, bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = h
}

// requestsSince returns path?query of requests after the first n.
func (f *fakeFMP) requestsSince(n int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests[n:]...)
}

func (f *fakeFMP) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeFMP) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Del("apikey")

	f.mu.Lock()
	f.requests = append(f.requests, r.URL.Path+"?"+q.Encode())
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if status, body, ok := hook(r); ok {
			w.WriteHeader(status)
			io.WriteString(w, body)
			return
		}
	}

	var payload any
	switch {
	case r.URL.Path == "/exchanges":
		payload = []map[string]any{
			{"code": "NASDAQ", "name": "Nasdaq"},
			{"code": "NYSE", "name": "New York Stock Exchange"},
		}

	case r.URL.Path == "/symbols":
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		items := []map[string]any{}
		for i := page * limit; i < (page+1)*limit && i < len(testSymbols); i++ {
			items = append(items, symbolItem(i))
		}
		payload = items

	case strings.HasPrefix(r.URL.Path, "/profile/"):
		items := []map[string]any{}
		for _, s := range strings.Split(strings.TrimPrefix(r.URL.Path, "/profile/"), ",") {
			items = append(items, map[string]any{"symbol": s, "companyName": "Co " + s})
		}
		payload = items

	case strings.HasPrefix(r.URL.Path, "/bars/"):
		symbol := strings.TrimPrefix(r.URL.Path, "/bars/")
		from := q.Get("from")
		bars := []map[string]any{}
		for i, d := range testDates {
			if from != "" && d < from {
				continue
			}
			bars = append(bars, map[string]any{
				"date":   d,
				"close":  json.Number(strconv.Itoa(100+i) + ".25"),
				"volume": 1000 * (i + 1),
			})
		}
		payload = map[string]any{"symbol": symbol, "historical": bars}

	default:
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func symbolItem(i int) map[string]any {
	exchange := "NASDAQ"
	if i%2 == 1 {
		exchange = "NYSE"
	}
	return map[string]any{
		"symbol":            testSymbols[i],
		"name":              "Name " + testSymbols[i],
		"exchangeShortName": exchange,
		"type":              "stock",
	}
}

// listPage returns the page query value of a /symbols request, or -1.
func listPage(r *http.Request) int {
	if r.URL.Path != "/symbols" {
		return -1
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return -1
	}
	return page
}

type eventLog struct {
	mu     sync.Mutex
	events []model.JobEvent
}

func (l *eventLog) Publish(ev model.JobEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) transitions(entity string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, ev := range l.events {
		if ev.Job.Entity == entity {
			out = append(out, string(ev.From)+">"+string(ev.Job.Status))
		}
	}
	return out
}

type harness struct {
	fmp    *fakeFMP
	gw     *storage.Memory
	orch   *Orchestrator
	events *eventLog
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()

	fmp := &fakeFMP{}
	srv := httptest.NewServer(fmp)
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL,
		&auth.Credentials{APIKey: "test-key", Mode: auth.ModeQuery},
		api.WithLimiter(api.NewLimiter(api.LimiterConfig{
			BaseBackoff: time.Millisecond,
			MaxBackoff:  5 * time.Millisecond,
		})),
		api.WithRetries(2, time.Millisecond),
		api.WithRateLimitRetries(3),
		api.WithPageSize(2),
	)

	gw := storage.NewMemory()
	events := &eventLog{}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithSink(events),
	}, opts...)
	orch := New(testCatalog(t), client, gw, writer.New(gw, nil, nil), cfg, opts...)

	return &harness{fmp: fmp, gw: gw, orch: orch, events: events}
}

func byEntity(jobs []model.ImportJob) map[string]model.ImportJob {
	out := make(map[string]model.ImportJob, len(jobs))
	for _, j := range jobs {
		out[j.Entity] = j
	}
	return out
}
