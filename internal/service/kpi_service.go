package service

import (
	"context"
	"encoding/json"
	"sort"

	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/store"

	"go.uber.org/zap"
)

// KPIService 累计计数器（dashboard 消费）
type KPIService struct {
	store  store.Store
	logger *zap.Logger
}

func NewKPIService(st store.Store, logger *zap.Logger) *KPIService {
	return &KPIService{store: st, logger: logger}
}

func kpiRef(name string) store.Ref {
	return store.Ref{Collection: domain.CollectionKPIs, ID: name}
}

// Seed 集合为空时写入初始计数器；事务内复核避免重复播种
func (s *KPIService) Seed(ctx context.Context) error {
	return s.store.RunTransaction(ctx, func(tx store.Tx) error {
		docs, err := tx.GetAll(domain.CollectionKPIs)
		if err != nil {
			return err
		}
		if len(docs) > 0 {
			return nil
		}
		for _, kpi := range domain.DefaultKPIs() {
			k := kpi
			if err := tx.Set(kpiRef(k.Name), k); err != nil {
				return err
			}
		}
		return nil
	})
}

// List 当前计数器快照（按标题排序，展示稳定）
func (s *KPIService) List(ctx context.Context) ([]domain.KPI, error) {
	docs, err := s.store.GetAll(ctx, domain.CollectionKPIs)
	if err != nil {
		return nil, err
	}
	kpis := make([]domain.KPI, 0, len(docs))
	for _, doc := range docs {
		var k domain.KPI
		if err := json.Unmarshal(doc.Data, &k); err != nil {
			s.logger.Error("skipping undecodable kpi document", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		k.Name = doc.ID
		kpis = append(kpis, k)
	}
	sort.Slice(kpis, func(i, j int) bool { return kpis[i].Title < kpis[j].Title })
	return kpis, nil
}

// Increment 计数器自增；事务内读改写保证并发安全
func (s *KPIService) Increment(ctx context.Context, name string, delta int) error {
	return s.store.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(kpiRef(name))
		if err != nil {
			return err
		}
		var k domain.KPI
		if err := json.Unmarshal(doc.Data, &k); err != nil {
			return err
		}
		return tx.Update(kpiRef(name), map[string]any{"value": k.Value + delta})
	})
}

// RecordExit 离院计数：总数总是 +1，转院再记一次转院计数
func (s *KPIService) RecordExit(ctx context.Context, exitType domain.ExitType) error {
	if err := s.Increment(ctx, domain.KPITotalExits, 1); err != nil {
		return err
	}
	if exitType == domain.ExitTransfer {
		if err := s.Increment(ctx, domain.KPIRegulationExits, 1); err != nil {
			return err
		}
	}
	return nil
}
