package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/store"

	"go.uber.org/zap"
)

// ErrHistoryNotFound 历史记录不存在
var ErrHistoryNotFound = errors.New("history record not found")

// historyLimit 报表读取上限（与原库查询配额一致）
const historyLimit = 50

// HistoryService 离院历史档案：只读有序快照 + 操作员更正/删除
// 历史记录由出院事务写入，此服务不负责创建
type HistoryService struct {
	store  store.Store
	logger *zap.Logger
}

func NewHistoryService(st store.Store, logger *zap.Logger) *HistoryService {
	return &HistoryService{store: st, logger: logger}
}

func historyRef(id string) store.Ref {
	return store.Ref{Collection: domain.CollectionPatientHistory, ID: id}
}

// List 历史记录快照：按离院时间倒序，最多 historyLimit 条
func (s *HistoryService) List(ctx context.Context) ([]domain.HistoryRecord, error) {
	docs, err := s.store.GetAll(ctx, domain.CollectionPatientHistory)
	if err != nil {
		return nil, err
	}
	records := make([]domain.HistoryRecord, 0, len(docs))
	for _, doc := range docs {
		var rec domain.HistoryRecord
		if err := json.Unmarshal(doc.Data, &rec); err != nil {
			s.logger.Error("skipping undecodable history document", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		rec.RecordID = doc.ID
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].ExitTimestamp.After(records[j].ExitTimestamp)
	})
	if len(records) > historyLimit {
		records = records[:historyLimit]
	}
	return records, nil
}

// Watch 历史记录快照流（报表协作方只读消费）
func (s *HistoryService) Watch(ctx context.Context) (<-chan []domain.HistoryRecord, func()) {
	docsCh, stop := s.store.Subscribe(ctx, domain.CollectionPatientHistory)
	out := make(chan []domain.HistoryRecord, 1)
	go func() {
		defer close(out)
		for docs := range docsCh {
			records := make([]domain.HistoryRecord, 0, len(docs))
			for _, doc := range docs {
				var rec domain.HistoryRecord
				if err := json.Unmarshal(doc.Data, &rec); err != nil {
					continue
				}
				rec.RecordID = doc.ID
				records = append(records, rec)
			}
			sort.Slice(records, func(i, j int) bool {
				return records[i].ExitTimestamp.After(records[j].ExitTimestamp)
			})
			if len(records) > historyLimit {
				records = records[:historyLimit]
			}
			select {
			case out <- records:
			default:
				select {
				case <-out:
				default:
				}
				out <- records
			}
		}
	}()
	return out, stop
}

// Update 操作员更正历史记录字段
func (s *HistoryService) Update(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	err := s.store.Update(ctx, historyRef(id), fields)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrHistoryNotFound, id)
	}
	return err
}

// Delete 显式删除历史记录
func (s *HistoryService) Delete(ctx context.Context, id string) error {
	s.logger.Info("deleting history record", zap.String("record_id", id))
	return s.store.Delete(ctx, historyRef(id))
}
