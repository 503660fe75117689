package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/mamacare/backend/internal/handler/chat"
	"github.com/zhouzirui/mamacare/backend/internal/handler/profile"
	"github.com/zhouzirui/mamacare/backend/internal/handler/stream"
	"github.com/zhouzirui/mamacare/backend/internal/handler/voice"
	middlewarePkg "github.com/zhouzirui/mamacare/backend/internal/middleware"
	profileModel "github.com/zhouzirui/mamacare/backend/internal/model/profile"
	chatService "github.com/zhouzirui/mamacare/backend/internal/service/chat"
	voiceService "github.com/zhouzirui/mamacare/backend/internal/service/voice"
	"github.com/zhouzirui/mamacare/backend/pkg/utils"
)

// Deps 汇总路由需要的服务。
type Deps struct {
	Profiles       profileModel.Store
	ChatSvc        *chatService.Service
	VoiceSvc       *voiceService.Service
	Logger         *zap.Logger
	AllowedOrigins []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": deps.ChatSvc.Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		profile.New(deps.Profiles).RegisterRoutes(api)

		var closers []chat.SessionCloser
		if deps.VoiceSvc != nil {
			closers = append(closers, deps.VoiceSvc)
		}
		chat.New(deps.ChatSvc, logger.Named("chat"), closers...).RegisterRoutes(api)

		stream.New(deps.ChatSvc, logger.Named("sse")).RegisterRoutes(api)

		if deps.VoiceSvc != nil {
			voice.New(deps.VoiceSvc, deps.ChatSvc, deps.Profiles, logger.Named("voice")).RegisterRoutes(api)
		}
	})

	return r
}
