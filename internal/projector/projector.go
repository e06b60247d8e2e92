package projector

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"wisefido-ward/internal/auth"
	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/store"

	"go.uber.org/zap"
)

// Projector 床位投影：订阅 beds 集合变更源，维护本地有序只读快照
// 快照只由变更回调更新，工作流调用方不直接写入；
// 首个空快照触发一次性默认布局播种（I4），等待变更源携带播种结果重新触发；
// 登出状态下投影为空并释放底层订阅
type Projector struct {
	store  store.Store
	auth   *auth.State
	logger *zap.Logger

	mu      sync.RWMutex
	beds    []domain.Bed
	subs    map[int]chan []domain.Bed
	nextSub int

	seedOnce sync.Once
}

func New(st store.Store, authState *auth.State, logger *zap.Logger) *Projector {
	return &Projector{
		store:  st,
		auth:   authState,
		logger: logger,
		beds:   []domain.Bed{},
		subs:   map[int]chan []domain.Bed{},
	}
}

// Run 投影主循环；阻塞直到 ctx 取消
func (p *Projector) Run(ctx context.Context) {
	authCh, cancelAuth := p.auth.Subscribe()
	defer cancelAuth()

	for {
		if ctx.Err() != nil {
			return
		}
		if !p.auth.SignedIn() {
			p.publish([]domain.Bed{})
			select {
			case <-ctx.Done():
				return
			case signedIn := <-authCh:
				if !signedIn {
					continue
				}
			}
		}
		p.watch(ctx, authCh)
	}
}

// watch 持有一份变更源订阅；登出或订阅中断时返回
func (p *Projector) watch(ctx context.Context, authCh <-chan bool) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	snapCh, stop := p.store.Subscribe(subCtx, domain.CollectionBeds)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case signedIn := <-authCh:
			if !signedIn {
				p.publish([]domain.Bed{})
				return
			}
		case docs, ok := <-snapCh:
			if !ok {
				// 变更源中断：保留最后一版快照，稍后重建订阅
				p.logger.Warn("bed change feed closed, resubscribing")
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
				return
			}
			p.handleSnapshot(ctx, docs)
		}
	}
}

func (p *Projector) handleSnapshot(ctx context.Context, docs []store.Document) {
	if len(docs) == 0 {
		seeded := false
		p.seedOnce.Do(func() {
			seeded = true
			p.seed(ctx)
		})
		if seeded {
			// 本轮不发布：等待变更源携带播种结果重新触发
			return
		}
		p.publish([]domain.Bed{})
		return
	}

	beds := make([]domain.Bed, 0, len(docs))
	for _, doc := range docs {
		var bed domain.Bed
		if err := json.Unmarshal(doc.Data, &bed); err != nil {
			p.logger.Error("failed to decode bed document",
				zap.String("doc_id", doc.ID),
				zap.Error(err),
			)
			continue
		}
		bed.ID = doc.ID
		beds = append(beds, bed)
	}
	domain.SortBeds(beds)
	p.publish(beds)
}

// seed 一次性播种默认床位布局
// 事务内复核集合仍为空；固定文档 id 保证重复播种不产生重复床位
func (p *Projector) seed(ctx context.Context) {
	p.logger.Info("bed collection empty, seeding default layout")
	err := p.store.RunTransaction(ctx, func(tx store.Tx) error {
		docs, err := tx.GetAll(domain.CollectionBeds)
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			// 并发客户端已播种
			return nil
		}
		for _, bed := range domain.DefaultBeds() {
			b := bed
			if err := tx.Set(store.Ref{Collection: domain.CollectionBeds, ID: b.ID}, b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		p.logger.Error("failed to seed default beds", zap.Error(err))
	}
}

func (p *Projector) publish(beds []domain.Bed) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beds = beds
	for _, ch := range p.subs {
		snap := append([]domain.Bed(nil), beds...)
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// Beds 当前有序快照的副本
func (p *Projector) Beds() []domain.Bed {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.Bed(nil), p.beds...)
}

// Subscribe 订阅投影快照；订阅建立后立即投递当前快照
func (p *Projector) Subscribe() (<-chan []domain.Bed, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	ch := make(chan []domain.Bed, 1)
	p.subs[id] = ch
	ch <- append([]domain.Bed(nil), p.beds...)
	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
