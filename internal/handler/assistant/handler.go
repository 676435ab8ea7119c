package assistant

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/rag-voice/backend/internal/metrics"
	"github.com/zhouzirui/rag-voice/backend/internal/service/pipeline"
	"github.com/zhouzirui/rag-voice/backend/internal/service/session"
	"github.com/zhouzirui/rag-voice/backend/pkg/utils"
)

// FrameHandler 处理单个入站帧，便于测试替换
type FrameHandler interface {
	HandleFrame(ctx context.Context, sess *session.Session, frame pipeline.Frame, emit pipeline.Emitter) error
}

// Options 连接级参数
type Options struct {
	MaxFrameBytes int64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	PingInterval  time.Duration
}

// Capabilities 描述当前启用的外部能力，供健康检查展示
type Capabilities struct {
	Provider          string `json:"provider"`
	SpeechInput       bool   `json:"speechInput"`
	SpeechOutput      bool   `json:"speechOutput"`
	Retrieval         bool   `json:"retrieval"`
	Archive           bool   `json:"archive"`
	DefaultCollection string `json:"defaultCollection,omitempty"`
}

// Handler 实时助手的 HTTP / WebSocket 处理器
type Handler struct {
	registry *session.Registry
	frames   FrameHandler
	metrics  *metrics.Metrics
	caps     Capabilities
	opts     Options
	upgrader websocket.Upgrader
}

// New 创建处理器，metrics 可为 nil
func New(registry *session.Registry, frames FrameHandler, caps Capabilities, opts Options, m *metrics.Metrics) *Handler {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.ReadTimeout {
		opts.PingInterval = opts.ReadTimeout * 9 / 10
	}

	return &Handler{
		registry: registry,
		frames:   frames,
		metrics:  m,
		caps:     caps,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册实时助手路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/assistant", h.handleWebSocket)

	r.Route("/api/assistant", func(api chi.Router) {
		api.Get("/health", h.handleHealth)
		api.Get("/sessions", h.handleSessions)
		api.Get("/sessions/{sessionID}", h.handleSession)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"sessions":     h.registry.Len(),
		"capabilities": h.caps,
	})
}

func (h *Handler) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := h.registry.Snapshot()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Get(chi.URLParam(r, "sessionID"))
	if errors.Is(err, session.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess.Info())
}
