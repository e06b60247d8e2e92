package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound 目标文档不存在
	ErrNotFound = errors.New("document not found")
	// ErrConflict 事务冲突且重试耗尽
	ErrConflict = errors.New("transaction conflict")
	// ErrReadAfterWrite 事务内所有读取必须先于写入
	ErrReadAfterWrite = errors.New("transaction reads must precede writes")
)

// Ref 文档引用
type Ref struct {
	Collection string
	ID         string
}

// Document 文档快照（原始 JSON，由调用方解码为领域类型）
type Document struct {
	ID   string
	Data json.RawMessage
}

// Tx 事务内读写接口
// 约束：所有读取必须先于写入；写入暂存，提交时整体生效
type Tx interface {
	// Get 读取单个文档，缺失时返回 ErrNotFound
	Get(ref Ref) (*Document, error)
	// GetAll 读取集合内全部文档
	GetAll(collection string) ([]Document, error)
	// Set 整体写入（覆盖）文档
	Set(ref Ref, data any) error
	// Update 合并字段到已有文档，文档缺失时提交失败并返回 ErrNotFound
	Update(ref Ref, fields map[string]any) error
	// Delete 删除文档；文档缺失不算错误
	Delete(ref Ref) error
}

// Store 文档存储边界：原子多文档事务 + 集合级全量快照变更订阅
//
// 事务语义：fn 内读写全部成功或全部失效；并发写冲突由实现透明重试，
// 重试耗尽时返回 ErrConflict。
// 订阅语义：集合任一变更后投递整集合快照；同一订阅者上快照可合并
// （只保证最终收到最新一版），不保证自身写入出现在下一条快照中。
type Store interface {
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error

	Create(ctx context.Context, collection string, data any) (string, error)
	Set(ctx context.Context, ref Ref, data any) error
	Update(ctx context.Context, ref Ref, fields map[string]any) error
	Delete(ctx context.Context, ref Ref) error
	Get(ctx context.Context, ref Ref) (*Document, error)
	GetAll(ctx context.Context, collection string) ([]Document, error)

	// Subscribe 订阅集合变更；返回快照通道与取消函数。
	// 订阅建立后立即投递一次当前快照。
	Subscribe(ctx context.Context, collection string) (<-chan []Document, func())
}

// newDocumentID 生成文档 id
func newDocumentID() string {
	return uuid.NewString()
}

// marshal 统一 JSON 编码入口
func marshal(data any) (json.RawMessage, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// mergeFields 将 fields 合并到已有文档 JSON
func mergeFields(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	doc := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	}
	for k, v := range fields {
		doc[k] = v
	}
	return marshal(doc)
}
