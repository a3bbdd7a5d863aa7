package temporalx

import (
	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string
}

func LoadConfig() Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "evlin"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "evlin-maintenance"),
	}
}
