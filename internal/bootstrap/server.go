package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/promptops/insight-pipeline/internal/api"
	"github.com/promptops/insight-pipeline/internal/config"
	"github.com/promptops/insight-pipeline/internal/logger"
	"github.com/promptops/insight-pipeline/internal/queue"
	"github.com/promptops/insight-pipeline/internal/storage"
	"github.com/promptops/insight-pipeline/internal/telemetry"
)

// SetupHTTPServer builds the operational HTTP server around the ops router.
func SetupHTTPServer(
	cfg *config.Config,
	store *storage.Store,
	redisClient *redis.Client,
	q queue.Queue,
	metrics *telemetry.Metrics,
	log logger.Logger,
) *http.Server {
	router := api.NewRouter(api.Deps{
		DB: store,
		Redis: api.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
		Queue:   q,
		Metrics: metrics,
		Log:     log,
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
