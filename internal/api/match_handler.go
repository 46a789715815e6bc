package api

import (
	"errors"
	"net/http"

	"FightScore/internal/config"
	"FightScore/internal/model"
	"FightScore/internal/repository"
	"FightScore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// MatchHandler 裁判台与观众端使用的比赛接口
type MatchHandler struct {
	matchService *service.MatchService
	auditService *service.AuditService
	logger       *logrus.Logger
}

// NewMatchHandler 创建 MatchHandler
func NewMatchHandler(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *MatchHandler {
	repo := repository.NewMatchRepository(db)
	return &MatchHandler{
		matchService: service.NewMatchService(repo, cfg.Match, logger),
		auditService: service.NewAuditService(repo, logger),
		logger:       logger,
	}
}

// ScoreRequest 记分请求体
type ScoreRequest struct {
	CompetitorColor string `json:"competitor_color" binding:"required"`
	ScoreType       string `json:"score_type" binding:"required"`
}

// PenaltyRequest 犯规请求体，competitor_color 为犯规方
type PenaltyRequest struct {
	CompetitorColor string `json:"competitor_color" binding:"required"`
	PenaltyType     string `json:"penalty_type" binding:"required"`
}

// statusOf 业务错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *MatchHandler) fail(c *gin.Context, op string, err error) {
	code := statusOf(err)
	entry := h.logger.WithError(err).WithField("path", c.FullPath())
	if code == http.StatusInternalServerError {
		entry.Error(op + " failed")
	} else {
		entry.Warn(op + " rejected")
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// matchID 解析 :id，数字即比赛ID，否则按 match_uuid 查找
func (h *MatchHandler) matchID(c *gin.Context, op string) (uint64, bool) {
	id, err := h.matchService.ResolveMatchID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, op, err)
		return 0, false
	}
	return id, true
}

// CreateMatch 创建比赛
// POST /api/matches
func (h *MatchHandler) CreateMatch(c *gin.Context) {
	var req service.CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.matchService.CreateMatch(c.Request.Context(), &req)
	if err != nil {
		h.fail(c, "CreateMatch", err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// ListMatches 比赛列表，最新创建的在前
// GET /api/matches
func (h *MatchHandler) ListMatches(c *gin.Context) {
	list, err := h.matchService.ListMatches(c.Request.Context())
	if err != nil {
		h.fail(c, "ListMatches", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetMatchDetail 比赛详情：比赛、回合、当前回合、得分与犯规流水
// GET /api/matches/:id
func (h *MatchHandler) GetMatchDetail(c *gin.Context) {
	id, ok := h.matchID(c, "GetMatchDetail")
	if !ok {
		return
	}
	detail, err := h.matchService.GetMatchDetail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "GetMatchDetail", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// UpdateMatch 部分更新比赛信息
// PATCH /api/matches/:id
func (h *MatchHandler) UpdateMatch(c *gin.Context) {
	id, ok := h.matchID(c, "UpdateMatch")
	if !ok {
		return
	}
	var patch service.MatchPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, err := h.matchService.UpdateMatch(c.Request.Context(), id, patch)
	if err != nil {
		h.fail(c, "UpdateMatch", err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type lifecycleCommand func(svc *service.MatchService, c *gin.Context, id uint64) (*service.MatchDetail, error)

// lifecycle 无请求体的状态命令，成功时返回最新详情
func (h *MatchHandler) lifecycle(op string, cmd lifecycleCommand) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.matchID(c, op)
		if !ok {
			return
		}
		detail, err := cmd(h.matchService, c, id)
		if err != nil {
			h.fail(c, op, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

// StartMatch POST /api/matches/:id/start
func (h *MatchHandler) StartMatch() gin.HandlerFunc {
	return h.lifecycle("StartMatch", func(svc *service.MatchService, c *gin.Context, id uint64) (*service.MatchDetail, error) {
		return svc.StartMatch(c.Request.Context(), id)
	})
}

// PauseMatch POST /api/matches/:id/pause
func (h *MatchHandler) PauseMatch() gin.HandlerFunc {
	return h.lifecycle("PauseMatch", func(svc *service.MatchService, c *gin.Context, id uint64) (*service.MatchDetail, error) {
		return svc.PauseMatch(c.Request.Context(), id)
	})
}

// ResumeMatch POST /api/matches/:id/resume
func (h *MatchHandler) ResumeMatch() gin.HandlerFunc {
	return h.lifecycle("ResumeMatch", func(svc *service.MatchService, c *gin.Context, id uint64) (*service.MatchDetail, error) {
		return svc.ResumeMatch(c.Request.Context(), id)
	})
}

// EndRound POST /api/matches/:id/end-round
func (h *MatchHandler) EndRound() gin.HandlerFunc {
	return h.lifecycle("EndRound", func(svc *service.MatchService, c *gin.Context, id uint64) (*service.MatchDetail, error) {
		return svc.EndRound(c.Request.Context(), id)
	})
}

// StartRound POST /api/matches/:id/start-round
func (h *MatchHandler) StartRound() gin.HandlerFunc {
	return h.lifecycle("StartRound", func(svc *service.MatchService, c *gin.Context, id uint64) (*service.MatchDetail, error) {
		return svc.StartRound(c.Request.Context(), id)
	})
}

// RecordScore 记一次技术得分
// POST /api/matches/:id/scores
func (h *MatchHandler) RecordScore(c *gin.Context) {
	id, ok := h.matchID(c, "RecordScore")
	if !ok {
		return
	}
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	color, err := model.ParseColor(req.CompetitorColor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	technique, err := model.ParseTechnique(req.ScoreType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detail, err := h.matchService.RecordScore(c.Request.Context(), id, color, technique)
	if err != nil {
		h.fail(c, "RecordScore", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// RecordPenalty 记一次犯规
// POST /api/matches/:id/penalties
func (h *MatchHandler) RecordPenalty(c *gin.Context) {
	id, ok := h.matchID(c, "RecordPenalty")
	if !ok {
		return
	}
	var req PenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	color, err := model.ParseColor(req.CompetitorColor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, err := model.ParsePenaltyType(req.PenaltyType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detail, err := h.matchService.RecordPenalty(c.Request.Context(), id, color, kind)
	if err != nil {
		h.fail(c, "RecordPenalty", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// AuditMatch 由流水重算比分并与存储值比对
// GET /api/matches/:id/audit
func (h *MatchHandler) AuditMatch(c *gin.Context) {
	id, ok := h.matchID(c, "AuditMatch")
	if !ok {
		return
	}
	report, err := h.auditService.CheckMatch(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "AuditMatch", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListCommands 裁判操作记录
// GET /api/matches/:id/commands
func (h *MatchHandler) ListCommands(c *gin.Context) {
	id, ok := h.matchID(c, "ListCommands")
	if !ok {
		return
	}
	list, err := h.matchService.ListCommands(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "ListCommands", err)
		return
	}
	c.JSON(http.StatusOK, list)
}
