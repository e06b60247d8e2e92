package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// State 登录状态信号（认证协作方边界）
// 投影器订阅该信号：登出状态下投影为空并释放订阅资源
type State struct {
	mu       sync.Mutex
	signedIn bool
	subs     map[int]chan bool
	nextSub  int
}

func NewState() *State {
	return &State{subs: map[int]chan bool{}}
}

// Set 更新登录状态；变化时通知订阅者
func (s *State) Set(signedIn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signedIn == signedIn {
		return
	}
	s.signedIn = signedIn
	for _, ch := range s.subs {
		select {
		case ch <- signedIn:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- signedIn
		}
	}
}

func (s *State) SignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signedIn
}

// Subscribe 订阅登录状态变化
func (s *State) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan bool, 1)
	s.subs[id] = ch
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Session 已登录会话
type Session struct {
	Token     string    `json:"token"`
	User      string    `json:"user"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sessions 进程内会话表；有活跃会话时 State 置为已登录
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]Session
	state    *State
}

func NewSessions(state *State) *Sessions {
	return &Sessions{sessions: map[string]Session{}, state: state}
}

// Create 签发新会话
func (s *Sessions) Create(user, role string) Session {
	sess := Session{
		Token:     uuid.NewString(),
		User:      user,
		Role:      role,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	s.state.Set(true)
	return sess
}

// Validate 校验会话 token
func (s *Sessions) Validate(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	return sess, ok
}

// Delete 注销会话；最后一个会话注销后 State 置为未登录
func (s *Sessions) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	empty := len(s.sessions) == 0
	s.mu.Unlock()
	if empty {
		s.state.Set(false)
	}
}
