package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStatsWarmup precomputes dashboard reports into the stats cache.
	TaskStatsWarmup = "stats:warmup"

	defaultWarmupDays = 10
)

// StatsWarmupPayload describes the window a warmup run covers.
type StatsWarmupPayload struct {
	Days int `json:"days"`
}

// NewStatsWarmupTask constructs the warmup task. Days defaults to the
// length of the dashboard daily series.
func NewStatsWarmupTask(days int) (*asynq.Task, error) {
	if days <= 0 {
		days = defaultWarmupDays
	}
	data, err := json.Marshal(StatsWarmupPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStatsWarmup, data), nil
}
