package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/fmp-data/internal/catalog"
	"github.com/rickgao/fmp-data/internal/depgraph"
	"github.com/rickgao/fmp-data/internal/importer"
	"github.com/rickgao/fmp-data/internal/model"
)

type entityView struct {
	ID          string   `json:"id"`
	Table       string   `json:"table"`
	Source      string   `json:"source"`
	Endpoint    string   `json:"endpoint"`
	Key         []string `json:"key"`
	DependsOn   []string `json:"depends_on,omitempty"`
	TimeSeries  bool     `json:"time_series"`
	SymbolsFrom string   `json:"symbols_from,omitempty"`
	Fields      int      `json:"fields"`
}

func viewOf(et *model.EntityType) entityView {
	return entityView{
		ID:          et.ID,
		Table:       et.TableName(),
		Source:      et.Source.String(),
		Endpoint:    et.Endpoint,
		Key:         et.Key,
		DependsOn:   et.DependsOn,
		TimeSeries:  et.TimeSeries,
		SymbolsFrom: et.SymbolsFrom,
		Fields:      len(et.Fields),
	}
}

type importRequest struct {
	Target string `json:"target"`
}

type importStatus struct {
	Running bool              `json:"running"`
	Jobs    []model.ImportJob `json:"jobs"`
	Error   string            `json:"error,omitempty"`
}

func errorBody(err error) gin.H {
	return gin.H{"error": err.Error()}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"running": s.importer.Running(),
	})
}

func (s *Server) listEntities(c *gin.Context) {
	entities := s.importer.ListEntityTypes()
	out := make([]entityView, len(entities))
	for i, et := range entities {
		out[i] = viewOf(et)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) schedule(c *gin.Context) {
	ordered, err := s.importer.ScheduleOrder()
	if err != nil {
		var cyc *depgraph.CyclicDependencyError
		if errors.As(err, &cyc) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "cycle": cyc.IDs})
			return
		}
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":  depgraph.IDs(ordered),
		"levels": depgraph.Levels(ordered),
	})
}

func (s *Server) startImport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorBody(err))
		return
	}
	if req.Target == "" {
		req.Target = importer.TargetAll
	}

	runID, err := s.importer.StartImport(s.ctx, req.Target)
	if err != nil {
		var cyc *depgraph.CyclicDependencyError
		switch {
		case errors.Is(err, importer.ErrAlreadyRunning):
			c.JSON(http.StatusConflict, errorBody(err))
		case errors.Is(err, catalog.ErrNotFound):
			c.JSON(http.StatusNotFound, errorBody(err))
		case errors.As(err, &cyc):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "cycle": cyc.IDs})
		default:
			c.JSON(http.StatusInternalServerError, errorBody(err))
		}
		return
	}

	s.logger.Info("import started via api", "run_id", runID, "target", req.Target)
	c.JSON(http.StatusAccepted, gin.H{"run_id": runID, "target": req.Target})
}

func (s *Server) cancelImport(c *gin.Context) {
	if !s.importer.Cancel() {
		c.JSON(http.StatusConflict, gin.H{"error": "no import running"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"cancelled": true})
}

func (s *Server) importStatus(c *gin.Context) {
	st := importStatus{
		Running: s.importer.Running(),
		Jobs:    s.importer.Status(),
	}
	if err := s.importer.LastError(); err != nil {
		st.Error = err.Error()
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) tables(c *gin.Context) {
	if s.reporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "table report not available"})
		return
	}

	report, err := s.reporter.TableReport(c.Request.Context(), s.importer.ListEntityTypes())
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorBody(err))
		return
	}
	c.JSON(http.StatusOK, report)
}
