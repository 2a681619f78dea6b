package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/backtest"
	btengine "github.com/ajitpratap0/stockfunk/pkg/backtest"
)

type createBacktestRequest struct {
	Name   string          `json:"name"`
	Config btengine.Config `json:"config"`
}

// handleCreateBacktest validates the config and submits an async run.
func (s *Server) handleCreateBacktest(c *gin.Context) {
	if s.jobs == nil {
		s.fail(c, http.StatusServiceUnavailable, "backtesting is not configured")
		return
	}

	var req createBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		req.Name = "run " + time.Now().UTC().Format("2006-01-02 15:04:05")
	}

	rec, err := s.jobs.Submit(c.Request.Context(), req.Name, req.Config)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusAccepted, rec.Summarize())
}

func (s *Server) handleListBacktests(c *gin.Context) {
	if s.jobs == nil {
		s.fail(c, http.StatusServiceUnavailable, "backtesting is not configured")
		return
	}
	summaries, err := s.jobs.List(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "listing runs failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": summaries})
}

func (s *Server) handleGetBacktest(c *gin.Context) {
	id, ok := s.backtestID(c)
	if !ok {
		return
	}
	rec, err := s.jobs.Get(c.Request.Context(), id)
	if errors.Is(err, backtest.ErrNotFound) {
		s.fail(c, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "loading run failed")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDeleteBacktest(c *gin.Context) {
	id, ok := s.backtestID(c)
	if !ok {
		return
	}
	err := s.jobs.Delete(c.Request.Context(), id)
	if errors.Is(err, backtest.ErrNotFound) {
		s.fail(c, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, "deleting run failed")
		return
	}
	c.Status(http.StatusNoContent)
}

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin enforcement happens in the CORS middleware for the REST
	// surface; the progress stream carries no sensitive data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleBacktestProgress streams job progress updates over WebSocket
// until the run reaches a terminal state or the client disconnects.
func (s *Server) handleBacktestProgress(c *gin.Context) {
	id, ok := s.backtestID(c)
	if !ok {
		return
	}
	if _, err := s.jobs.Get(c.Request.Context(), id); errors.Is(err, backtest.ErrNotFound) {
		s.fail(c, http.StatusNotFound, "run not found")
		return
	}

	conn, err := progressUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	updates, cancel := s.jobs.Subscribe(id)
	defer cancel()

	// Reader goroutine notices client disconnects.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case p, open := <-updates:
			if !open {
				return
			}
			if err := conn.WriteJSON(p); err != nil {
				log.Debug().Err(err).Str("run_id", id.String()).Msg("Progress client dropped")
				return
			}
		case <-gone:
			return
		}
	}
}

// backtestID parses the :id parameter; on failure it writes the error
// response and returns false.
func (s *Server) backtestID(c *gin.Context) (uuid.UUID, bool) {
	if s.jobs == nil {
		s.fail(c, http.StatusServiceUnavailable, "backtesting is not configured")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.fail(c, http.StatusBadRequest, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}
