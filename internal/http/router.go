package httpapi

import (
	"net/http"

	"wisefido-ward/internal/auth"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux      *http.ServeMux
	sessions *auth.Sessions
	logger   *zap.Logger
}

func NewRouter(sessions *auth.Sessions, logger *zap.Logger) *Router {
	return &Router{
		mux:      http.NewServeMux(),
		sessions: sessions,
		logger:   logger,
	}
}

func (r *Router) Handle(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

// HandleProtected 注册需要会话校验的路由
func (r *Router) HandleProtected(pattern string, h http.Handler) {
	r.mux.Handle(pattern, RequireAuth(r.sessions, h))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAuthRoutes 注册登录/登出路由（无需会话）
func (r *Router) RegisterAuthRoutes(h *AuthHandler) {
	r.Handle("/ward/api/v1/login", h)
	r.Handle("/ward/api/v1/logout", h)
}

// RegisterWardRoutes 注册普查与床位工作流路由
func (r *Router) RegisterWardRoutes(h *WardHandler) {
	r.HandleProtected("/ward/api/v1/census", h)
	r.HandleProtected("/ward/api/v1/census/export", h)
	r.HandleProtected("/ward/api/v1/beds", h)
	r.HandleProtected("/ward/api/v1/beds/", h)
}

// RegisterPendencyRoutes 注册待办路由
func (r *Router) RegisterPendencyRoutes(h *PendencyHandler) {
	r.HandleProtected("/ward/api/v1/pendencies/legacy", h)
	r.HandleProtected("/ward/api/v1/pendencies/patient", h)
	r.HandleProtected("/ward/api/v1/pendencies/patient/", h)
	r.HandleProtected("/ward/api/v1/pendencies/general", h)
	r.HandleProtected("/ward/api/v1/pendencies/general/", h)
}

// RegisterHistoryRoutes 注册出院历史路由
func (r *Router) RegisterHistoryRoutes(h *HistoryHandler) {
	r.HandleProtected("/ward/api/v1/history", h)
	r.HandleProtected("/ward/api/v1/history/", h)
}

// RegisterKPIRoutes 注册指标路由
func (r *Router) RegisterKPIRoutes(h *KPIHandler) {
	r.HandleProtected("/ward/api/v1/kpis", h)
	r.HandleProtected("/ward/api/v1/kpis/increment", h)
}
