package notify

import (
	"context"
	"fmt"
	"time"

	"wisefido-ward/internal/config"
	"wisefido-ward/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Client 转院（Regulação）上游系统 Webhook 客户端
// 出院事务提交后的尽力而为通知：失败只记录日志，不影响出院结果
type Client struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewClient 创建 Webhook 客户端；URL 为空时客户端处于禁用状态
func NewClient(cfg config.RegulationConfig, logger *zap.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		url:        cfg.WebhookURL,
		logger:     logger,
	}
}

// Enabled 是否配置了 Webhook 地址
func (c *Client) Enabled() bool {
	return c.url != ""
}

// NotifyExit 推送离院/转院记录到上游系统
func (c *Client) NotifyExit(ctx context.Context, record *domain.HistoryRecord) error {
	if !c.Enabled() {
		return nil
	}

	c.logger.Info("notifying regulation webhook",
		zap.String("patient_id", record.Patient.ID),
		zap.String("exit_type", string(record.ExitType)),
	)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(record).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("failed to call regulation webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("regulation webhook returned status %d", resp.StatusCode())
	}
	return nil
}
