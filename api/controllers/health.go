package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/groupbuyhq/groupbuy-backend/api/responses"
	"github.com/groupbuyhq/groupbuy-backend/pkg/config"
	"github.com/groupbuyhq/groupbuy-backend/pkg/db"
	pkgerrors "github.com/groupbuyhq/groupbuy-backend/pkg/errors"
	"github.com/groupbuyhq/groupbuy-backend/pkg/logger"
	"github.com/groupbuyhq/groupbuy-backend/pkg/redis"
)

const readyTimeout = 5 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-GroupBuy-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-GroupBuy-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
