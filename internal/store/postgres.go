package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Schema documents 表结构（所有集合共用一张 JSONB 文档表）
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	doc_id     TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, doc_id)
)`

// EnsureSchema 确保 documents 表存在
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to ensure documents schema: %w", err)
	}
	return nil
}

const (
	changeChannelPrefix = "ward:changes:"
	maxTxRetries        = 5
)

// PostgresStore PostgreSQL 文档存储
// 事务使用 SERIALIZABLE 隔离级别，序列化冲突自动重试；
// 提交后通过 Redis 发布集合变更，驱动 Subscribe 的全量快照投递
type PostgresStore struct {
	db     *sql.DB
	redis  *redis.Client
	logger *zap.Logger
}

func NewPostgresStore(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, redis: redisClient, logger: logger}
}

// pgTx 读直达数据库（建立序列化读依赖），写暂存到 ops
type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
	ops []memOp
}

func (t *pgTx) Get(ref Ref) (*Document, error) {
	if len(t.ops) > 0 {
		return nil, ErrReadAfterWrite
	}
	var data []byte
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`,
		ref.Collection, ref.ID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", ref.Collection, ref.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &Document{ID: ref.ID, Data: data}, nil
}

func (t *pgTx) GetAll(collection string) ([]Document, error) {
	if len(t.ops) > 0 {
		return nil, ErrReadAfterWrite
	}
	return queryCollection(t.ctx, t.tx, collection)
}

func (t *pgTx) Set(ref Ref, data any) error {
	raw, err := marshal(data)
	if err != nil {
		return err
	}
	t.ops = append(t.ops, memOp{kind: "set", ref: ref, data: raw})
	return nil
}

func (t *pgTx) Update(ref Ref, fields map[string]any) error {
	t.ops = append(t.ops, memOp{kind: "update", ref: ref, fields: fields})
	return nil
}

func (t *pgTx) Delete(ref Ref) error {
	t.ops = append(t.ops, memOp{kind: "delete", ref: ref})
	return nil
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		changed, err := s.runOnce(ctx, fn)
		if err == nil {
			s.publishChanges(ctx, changed)
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
		s.logger.Warn("transaction conflict, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(10*(1<<attempt)) * time.Millisecond):
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

func (s *PostgresStore) runOnce(ctx context.Context, fn func(tx Tx) error) (map[string]bool, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ptx := &pgTx{ctx: ctx, tx: tx}
	if err := fn(ptx); err != nil {
		return nil, err
	}

	changed := map[string]bool{}
	for _, op := range ptx.ops {
		switch op.kind {
		case "set":
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO documents (collection, doc_id, data) VALUES ($1, $2, $3)
				 ON CONFLICT (collection, doc_id)
				 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
				op.ref.Collection, op.ref.ID, []byte(op.data),
			); err != nil {
				return nil, fmt.Errorf("failed to set document: %w", err)
			}
		case "update":
			merged, err := marshal(op.fields)
			if err != nil {
				return nil, err
			}
			res, err := tx.ExecContext(ctx,
				`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
				 WHERE collection = $1 AND doc_id = $2`,
				op.ref.Collection, op.ref.ID, []byte(merged),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to update document: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return nil, fmt.Errorf("%s/%s: %w", op.ref.Collection, op.ref.ID, ErrNotFound)
			}
		case "delete":
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = $1 AND doc_id = $2`,
				op.ref.Collection, op.ref.ID,
			); err != nil {
				return nil, fmt.Errorf("failed to delete document: %w", err)
			}
		}
		changed[op.ref.Collection] = true
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return changed, nil
}

// isSerializationFailure 序列化冲突 / 死锁（可安全重试）
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data any) (string, error) {
	id := newDocumentID()
	if err := s.Set(ctx, Ref{Collection: collection, ID: id}, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, ref Ref, data any) error {
	raw, err := marshal(data)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, doc_id, data) VALUES ($1, $2, $3)
		 ON CONFLICT (collection, doc_id)
		 DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		ref.Collection, ref.ID, []byte(raw),
	); err != nil {
		return fmt.Errorf("failed to set document: %w", err)
	}
	s.publishChanges(ctx, map[string]bool{ref.Collection: true})
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, ref Ref, fields map[string]any) error {
	merged, err := marshal(fields)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = now()
		 WHERE collection = $1 AND doc_id = $2`,
		ref.Collection, ref.ID, []byte(merged),
	)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s/%s: %w", ref.Collection, ref.ID, ErrNotFound)
	}
	s.publishChanges(ctx, map[string]bool{ref.Collection: true})
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, ref Ref) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND doc_id = $2`,
		ref.Collection, ref.ID,
	); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	s.publishChanges(ctx, map[string]bool{ref.Collection: true})
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, ref Ref) (*Document, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND doc_id = $2`,
		ref.Collection, ref.ID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s/%s: %w", ref.Collection, ref.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &Document{ID: ref.ID, Data: data}, nil
}

func (s *PostgresStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	return queryCollection(ctx, s.db, collection)
}

// Subscribe 订阅集合变更：Redis 发布/订阅触发全量重查
func (s *PostgresStore) Subscribe(ctx context.Context, collection string) (<-chan []Document, func()) {
	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan []Document, 1)
	go s.feedLoop(subCtx, collection, out)
	return out, cancel
}

func (s *PostgresStore) feedLoop(ctx context.Context, collection string, out chan []Document) {
	defer close(out)

	pubsub := s.redis.Subscribe(ctx, changeChannelPrefix+collection)
	defer pubsub.Close()
	msgCh := pubsub.Channel()

	// 订阅建立后立即投递一次当前快照
	s.deliverSnapshot(ctx, collection, out)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-msgCh:
			if !ok {
				return
			}
			s.deliverSnapshot(ctx, collection, out)
		}
	}
}

// deliverSnapshot 重查集合并投递；查询失败时仅记录日志，保留上一版快照
func (s *PostgresStore) deliverSnapshot(ctx context.Context, collection string, out chan []Document) {
	docs, err := s.GetAll(ctx, collection)
	if err != nil {
		s.logger.Error("change feed query failed",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return
	}
	select {
	case out <- docs:
	default:
		select {
		case <-out:
		default:
		}
		out <- docs
	}
}

func (s *PostgresStore) publishChanges(ctx context.Context, changed map[string]bool) {
	for collection := range changed {
		if err := s.redis.Publish(ctx, changeChannelPrefix+collection, "changed").Err(); err != nil {
			// 写入已提交，通知失败只会延迟投影刷新
			s.logger.Warn("failed to publish change notification",
				zap.String("collection", collection),
				zap.Error(err),
			)
		}
	}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryCollection(ctx context.Context, q queryer, collection string) ([]Document, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT doc_id, data FROM documents WHERE collection = $1 ORDER BY doc_id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}
