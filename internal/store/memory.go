package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore 内存文档存储：用于单元测试与 DB 未就绪时的本地联测
// 全局互斥锁下执行事务，天然满足原子性；变更后向订阅者投递整集合快照
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string][]byte

	subs    map[string]map[int]chan []Document
	nextSub int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string]map[string][]byte{},
		subs: map[string]map[int]chan []Document{},
	}
}

// memOp 暂存的写操作
type memOp struct {
	kind   string // "set" | "update" | "delete"
	ref    Ref
	data   []byte
	fields map[string]any
}

// memTx 读已提交状态，写暂存到 ops
type memTx struct {
	store *MemoryStore
	ops   []memOp
}

func (t *memTx) Get(ref Ref) (*Document, error) {
	if len(t.ops) > 0 {
		return nil, ErrReadAfterWrite
	}
	raw, ok := t.store.data[ref.Collection][ref.ID]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", ref.Collection, ref.ID, ErrNotFound)
	}
	return &Document{ID: ref.ID, Data: append([]byte(nil), raw...)}, nil
}

func (t *memTx) GetAll(collection string) ([]Document, error) {
	if len(t.ops) > 0 {
		return nil, ErrReadAfterWrite
	}
	return t.store.snapshotLocked(collection), nil
}

func (t *memTx) Set(ref Ref, data any) error {
	raw, err := marshal(data)
	if err != nil {
		return err
	}
	t.ops = append(t.ops, memOp{kind: "set", ref: ref, data: raw})
	return nil
}

func (t *memTx) Update(ref Ref, fields map[string]any) error {
	t.ops = append(t.ops, memOp{kind: "update", ref: ref, fields: fields})
	return nil
}

func (t *memTx) Delete(ref Ref) error {
	t.ops = append(t.ops, memOp{kind: "delete", ref: ref})
	return nil
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	if err := fn(tx); err != nil {
		return err
	}

	// 先校验再应用：整体成功或整体失效
	for _, op := range tx.ops {
		if op.kind == "update" {
			if _, ok := s.data[op.ref.Collection][op.ref.ID]; !ok {
				return fmt.Errorf("%s/%s: %w", op.ref.Collection, op.ref.ID, ErrNotFound)
			}
		}
	}

	changed := map[string]bool{}
	for _, op := range tx.ops {
		switch op.kind {
		case "set":
			s.putLocked(op.ref, op.data)
		case "update":
			merged, err := mergeFields(s.data[op.ref.Collection][op.ref.ID], op.fields)
			if err != nil {
				return err
			}
			s.putLocked(op.ref, merged)
		case "delete":
			delete(s.data[op.ref.Collection], op.ref.ID)
		}
		changed[op.ref.Collection] = true
	}
	for collection := range changed {
		s.notifyLocked(collection)
	}
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, collection string, data any) (string, error) {
	id := newDocumentID()
	if err := s.Set(ctx, Ref{Collection: collection, ID: id}, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, ref Ref, data any) error {
	raw, err := marshal(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(ref, raw)
	s.notifyLocked(ref.Collection)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[ref.Collection][ref.ID]
	if !ok {
		return fmt.Errorf("%s/%s: %w", ref.Collection, ref.ID, ErrNotFound)
	}
	merged, err := mergeFields(raw, fields)
	if err != nil {
		return err
	}
	s.putLocked(ref, merged)
	s.notifyLocked(ref.Collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[ref.Collection][ref.ID]; !ok {
		return nil
	}
	delete(s.data[ref.Collection], ref.ID)
	s.notifyLocked(ref.Collection)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, ref Ref) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[ref.Collection][ref.ID]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", ref.Collection, ref.ID, ErrNotFound)
	}
	return &Document{ID: ref.ID, Data: append([]byte(nil), raw...)}, nil
}

func (s *MemoryStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(collection), nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string) (<-chan []Document, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan []Document, 1)
	if s.subs[collection] == nil {
		s.subs[collection] = map[int]chan []Document{}
	}
	s.subs[collection][id] = ch

	// 订阅建立后立即投递一次当前快照
	ch <- s.snapshotLocked(collection)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[collection][id]; ok {
			delete(s.subs[collection], id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *MemoryStore) putLocked(ref Ref, raw []byte) {
	if s.data[ref.Collection] == nil {
		s.data[ref.Collection] = map[string][]byte{}
	}
	s.data[ref.Collection][ref.ID] = raw
}

func (s *MemoryStore) snapshotLocked(collection string) []Document {
	docs := make([]Document, 0, len(s.data[collection]))
	for id, raw := range s.data[collection] {
		docs = append(docs, Document{ID: id, Data: append([]byte(nil), raw...)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

// notifyLocked 向订阅者投递最新快照；通道已满时丢弃旧快照（合并）
func (s *MemoryStore) notifyLocked(collection string) {
	if len(s.subs[collection]) == 0 {
		return
	}
	snap := s.snapshotLocked(collection)
	for _, ch := range s.subs[collection] {
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
