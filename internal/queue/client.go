package asynqx

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

type Client struct {
	*asynq.Client
}

func NewClient(redisAddr string) *Client {
	opt, err := NewRedisConnOpt(redisAddr)
	if err != nil {
		// 这里是内部封装，保持接口简单：配置非法直接 panic（由上层 main 负责校验更友好的错误）
		panic(err)
	}
	return &Client{Client: asynq.NewClient(opt)}
}

// Enqueue 投递一个工作流任务。MaxRetry 固定为 0：
// 重试语义由截图子工作流自己管理，不叠加 asynq 的指数退避。
func (c *Client) Enqueue(ctx context.Context, taskType string, p WorkflowPayload, delay time.Duration) error {
	task, err := NewWorkflowTask(taskType, p)
	if err != nil {
		return fmt.Errorf("构造任务 %s: %w", taskType, err)
	}

	opts := EnqueueOptions(EnqueueParams{
		Queue:    QueueDefault,
		MaxRetry: 0,
		Delay:    delay,
	})
	if _, err := c.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("入队 %s: %w", taskType, err)
	}
	return nil
}
