package httpapi

import (
	"net/http"
	"strings"

	"wisefido-ward/internal/auth"

	"go.uber.org/zap"
)

// AuthHandler 认证 Handler：登录签发 token，登出回收会话
type AuthHandler struct {
	sessions *auth.Sessions
	logger   *zap.Logger
}

func NewAuthHandler(sessions *auth.Sessions, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ward/api/v1/login":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Login(w, r)
	case "/ward/api/v1/logout":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Logout(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Login 登录并签发会话 token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User string `json:"user"`
		Role string `json:"role"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	req.User = strings.TrimSpace(req.User)
	if req.User == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user is required"))
		return
	}
	if strings.TrimSpace(req.Role) == "" {
		req.Role = "General"
	}

	sess := h.sessions.Create(req.User, req.Role)
	h.logger.Info("session created",
		zap.String("user", sess.User),
		zap.String("role", sess.Role))
	writeJSON(w, http.StatusOK, Ok(sess))
}

// Logout 注销当前会话
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, Fail("missing token"))
		return
	}
	h.sessions.Delete(token)
	writeJSON(w, http.StatusOK, Ok(map[string]any{"loggedOut": true}))
}

// bearerToken 取请求 token：Authorization: Bearer xxx 或 X-Token 头
func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return r.Header.Get("X-Token")
}

// RequireAuth 会话校验中间件；校验通过后把会话角色写入请求头供下游读取
func RequireAuth(sessions *auth.Sessions, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, Fail("missing token"))
			return
		}
		sess, ok := sessions.Validate(token)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, Fail("invalid token"))
			return
		}
		r.Header.Set("X-Session-User", sess.User)
		r.Header.Set("X-Session-Role", sess.Role)
		next.ServeHTTP(w, r)
	})
}
