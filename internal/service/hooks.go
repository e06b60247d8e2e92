package service

import (
	"context"

	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/notify"
)

// PendencyCleanupHook 出院后清除该患者的全部待办
type PendencyCleanupHook struct {
	pendencies *PendencyService
}

func NewPendencyCleanupHook(pendencies *PendencyService) *PendencyCleanupHook {
	return &PendencyCleanupHook{pendencies: pendencies}
}

func (h *PendencyCleanupHook) Name() string { return "pendency-cleanup" }

func (h *PendencyCleanupHook) AfterDischarge(ctx context.Context, evt DischargeEvent) error {
	return h.pendencies.DeleteForPatient(ctx, evt.Patient.ID)
}

// KPICounterHook 出院后累加离院计数器（空占位清除不计数）
type KPICounterHook struct {
	kpis *KPIService
}

func NewKPICounterHook(kpis *KPIService) *KPICounterHook {
	return &KPICounterHook{kpis: kpis}
}

func (h *KPICounterHook) Name() string { return "kpi-counter" }

func (h *KPICounterHook) AfterDischarge(ctx context.Context, evt DischargeEvent) error {
	if evt.Record == nil {
		return nil
	}
	return h.kpis.RecordExit(ctx, evt.Record.ExitType)
}

// RegulationWebhookHook 转院提交后通知上游转院系统（未配置时禁用）
type RegulationWebhookHook struct {
	client *notify.Client
}

func NewRegulationWebhookHook(client *notify.Client) *RegulationWebhookHook {
	return &RegulationWebhookHook{client: client}
}

func (h *RegulationWebhookHook) Name() string { return "regulation-webhook" }

func (h *RegulationWebhookHook) AfterDischarge(ctx context.Context, evt DischargeEvent) error {
	if evt.Record == nil || evt.Record.ExitType != domain.ExitTransfer {
		return nil
	}
	return h.client.NotifyExit(ctx, evt.Record)
}
