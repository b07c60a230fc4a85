package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/game"
	"github.com/threatlanes/threatlanes-server-go/internal/planner"
	"github.com/threatlanes/threatlanes-server-go/internal/repository"
	"go.uber.org/zap"
)

// Router builds the gin engine serving the REST API and the websocket.
func (s *Server) Router() *gin.Engine {
	if s.cfg.HTTP.Mode != "" {
		gin.SetMode(s.cfg.HTTP.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "games": len(s.engine.Games())})
	})
	r.GET("/ws", s.hub.ServeWS)

	games := r.Group("/games")
	games.GET("", s.listGames)
	games.POST("", s.createGame)
	games.GET("/:id/state", s.getState)
	games.POST("/:id/actions", s.postAction)
	games.POST("/:id/preview", s.previewFight)
	games.POST("/:id/plan", s.plan)
	games.PUT("/:id/steal-preference", s.setStealPreference)
	games.POST("/:id/end", s.forceEnd)
	games.DELETE("/:id", s.deleteGame)

	if s.results != nil {
		r.GET("/results", s.listResults)
		r.GET("/results/:id", s.getResult)
	}
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}

// httpStatus maps engine errors onto HTTP status codes.
func httpStatus(err error) int {
	var ae *game.ActionError
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrGameExists):
		return http.StatusConflict
	case errors.As(err, &ae):
		switch ae.Kind {
		case game.KindPlayerNotFound:
			return http.StatusNotFound
		case game.KindNotYourTurn, game.KindWrongPhase, game.KindGameOver:
			return http.StatusConflict
		case game.KindUnknownAction, game.KindInvalidPayload:
			return http.StatusBadRequest
		default:
			return http.StatusUnprocessableEntity
		}
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	var ae *game.ActionError
	if errors.As(err, &ae) {
		body["kind"] = ae.Kind
	}
	c.JSON(httpStatus(err), body)
}

func (s *Server) listGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": s.engine.Games()})
}

func (s *Server) createGame(c *gin.Context) {
	var req CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	gameID, err := s.CreateGame(req)
	if err != nil {
		writeError(c, err)
		return
	}
	view, err := s.engine.GetRedactedState(gameID, "")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"game_id": gameID, "state": view})
}

func (s *Server) getState(c *gin.Context) {
	view, err := s.engine.GetRedactedState(c.Param("id"), c.Query("viewer"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type actionRequest struct {
	PlayerID string             `json:"player_id" binding:"required"`
	Type     game.ActionType    `json:"type" binding:"required"`
	Payload  game.ActionPayload `json:"payload"`
}

func (s *Server) postAction(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	gameID := c.Param("id")
	if err := s.SubmitAction(gameID, req.PlayerID, game.Action{Type: req.Type, Payload: req.Payload}); err != nil {
		writeError(c, err)
		return
	}
	view, err := s.engine.GetRedactedState(gameID, req.PlayerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type previewRequest struct {
	PlayerID string             `json:"player_id" binding:"required"`
	Payload  game.ActionPayload `json:"payload"`
}

func (s *Server) previewFight(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	preview, err := s.engine.PreviewFight(c.Param("id"), req.PlayerID, req.Payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

type planRequest struct {
	PlayerID    string `json:"player_id" binding:"required"`
	MaxDepth    int    `json:"max_depth" binding:"gte=0,lte=6"`
	MaxBranches int    `json:"max_branches" binding:"gte=0,lte=5000"`
	TopN        int    `json:"top_n" binding:"gte=0"`
}

func (s *Server) plan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.Plan(c.Request.Context(), c.Param("id"), req.PlayerID, planner.Constraints{
		MaxDepth:    req.MaxDepth,
		MaxBranches: req.MaxBranches,
		TopN:        req.TopN,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type stealPreferenceRequest struct {
	PlayerID   string                     `json:"player_id" binding:"required"`
	Preference map[cards.ResourceType]int `json:"preference"`
}

func (s *Server) setStealPreference(c *gin.Context) {
	var req stealPreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.engine.SetStealPreference(c.Param("id"), req.PlayerID, req.Preference); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) forceEnd(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	gameID := c.Param("id")
	if err := s.engine.ForceEnd(gameID, req.Reason); err != nil {
		writeError(c, err)
		return
	}
	view, err := s.engine.GetRedactedState(gameID, "")
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) deleteGame(c *gin.Context) {
	if err := s.engine.EndGame(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listResults(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}
	results, err := s.results.ListResults(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) getResult(c *gin.Context) {
	res, err := s.results.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
