package api

import (
	"net/http"
	"slices"
	"time"

	"FightScore/internal/config"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// NewRouter 创建 Gin 引擎并注册全部路由
func NewRouter(db *gorm.DB, logger *logrus.Logger, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	corsCfg := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) == 0 || slices.Contains(cfg.Server.AllowedOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
	}
	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}
	r.Use(cors.New(corsCfg))

	// 注册pprof 方便调试和监测性能问题
	pprof.Register(r)

	r.GET("/healthcheck", Healthcheck)
	RegisterMatchRoutes(r, NewMatchHandler(db, logger, cfg))
	return r
}

// RegisterMatchRoutes 比赛相关路由
func RegisterMatchRoutes(r gin.IRouter, h *MatchHandler) {
	g := r.Group("/api/matches")
	g.POST("", h.CreateMatch)
	g.GET("", h.ListMatches)
	g.GET("/:id", h.GetMatchDetail)
	g.PATCH("/:id", h.UpdateMatch)
	g.GET("/:id/audit", h.AuditMatch)
	g.GET("/:id/commands", h.ListCommands)

	// 裁判台操作
	g.POST("/:id/start", h.StartMatch())
	g.POST("/:id/pause", h.PauseMatch())
	g.POST("/:id/resume", h.ResumeMatch())
	g.POST("/:id/end-round", h.EndRound())
	g.POST("/:id/start-round", h.StartRound())
	g.POST("/:id/scores", h.RecordScore)
	g.POST("/:id/penalties", h.RecordPenalty)
}

// Healthcheck GET /healthcheck
func Healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
}

// requestLogger 用 logrus 记录访问日志
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}).Debug("http request")
	}
}
