package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPricingWarmup reloads service snapshots into the pricing cache.
	TaskPricingWarmup = "pricing:warmup"
)

// PricingWarmupPayload selects what to warm. An empty Slugs list warms every
// active service. Version is the cache version that triggered the run.
type PricingWarmupPayload struct {
	Slugs   []string `json:"slugs,omitempty"`
	Version int64    `json:"version,omitempty"`
}

// NewPricingWarmupTask constructs the warmup task. Tasks for the same cache
// version share an id so concurrent listeners enqueue it once.
func NewPricingWarmupTask(payload PricingWarmupPayload) (*asynq.Task, []asynq.Option, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(2 * time.Minute)}
	if payload.Version > 0 {
		opts = append(opts, asynq.TaskID(fmt.Sprintf("pricing-warmup-v%d", payload.Version)))
	}
	return asynq.NewTask(TaskPricingWarmup, data), opts, nil
}
