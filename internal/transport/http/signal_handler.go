package http

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"quizsnap/internal/domain"
	"quizsnap/internal/transport/p2p"
)

const requestIDHeader = "X-Request-Id"

// SignalHandler serves the rendezvous API. It only maps room codes to host
// channel addresses; match traffic never reaches it.
type SignalHandler struct {
	rooms p2p.Rendezvous
	log   zerolog.Logger
	rps   int
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewSignalHandler(rooms p2p.Rendezvous, log zerolog.Logger, rps, burst int) *SignalHandler {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &SignalHandler{
		rooms:    rooms,
		log:      log,
		rps:      rps,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

type registerRequest struct {
	RoomID string `json:"roomId" binding:"required,len=6,alphanum"`
	Addr   string `json:"addr" binding:"required,url"`
}

type unregisterRequest struct {
	Addr string `form:"addr" binding:"required,url"`
}

type roomResponse struct {
	RoomID string `json:"roomId"`
	Addr   string `json:"addr"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Router builds the gin engine with CORS, request ids, access logs and
// per-client rate limiting on room registration and lookup.
func (h *SignalHandler) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(requestIDMiddleware(), h.accessLog())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	rooms := router.Group("/rooms", h.rateLimit())
	rooms.POST("", h.register)
	rooms.GET("/:id", h.resolve)
	rooms.DELETE("/:id", h.unregister)
	return router
}

func (h *SignalHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := h.rooms.Register(c.Request.Context(), req.RoomID, req.Addr); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info().Str("room", req.RoomID).Str("request_id", requestID(c)).Msg("room registered")
	c.JSON(http.StatusCreated, roomResponse(req))
}

func (h *SignalHandler) resolve(c *gin.Context) {
	roomID := c.Param("id")
	if !p2p.ValidRoomID(roomID) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: domain.ErrInvalidRoomID.Error()})
		return
	}
	addr, err := h.rooms.Resolve(c.Request.Context(), roomID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, roomResponse{RoomID: roomID, Addr: addr})
}

func (h *SignalHandler) unregister(c *gin.Context) {
	roomID := c.Param("id")
	if !p2p.ValidRoomID(roomID) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: domain.ErrInvalidRoomID.Error()})
		return
	}
	var req unregisterRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := h.rooms.Unregister(c.Request.Context(), roomID, req.Addr); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SignalHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRoomTaken):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrSignallingUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", requestID(c)).Msg("rendezvous failure")
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

func (h *SignalHandler) limiter(key string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if lim, ok := h.limiters[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Every(time.Second/time.Duration(h.rps)), h.burst)
	h.limiters[key] = lim
	return lim
}

func (h *SignalHandler) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
			return
		}
		c.Next()
	}
}

func (h *SignalHandler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", requestID(c)).
			Msg("request")
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDHeader)
}
