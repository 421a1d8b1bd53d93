package main

import (
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"cuidarmed/m/internal/api"
	"cuidarmed/m/internal/config"
	"cuidarmed/m/internal/database"
	"cuidarmed/m/internal/logger"
	"cuidarmed/m/internal/migrations"
	"cuidarmed/m/internal/notify"
	"cuidarmed/m/internal/store"
	"cuidarmed/m/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Env)

	db := database.Connect(cfg.DatabaseDSN)
	defer db.Close()

	migrations.Run(db)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Warn("unknown timezone, falling back to UTC", "timezone", cfg.Timezone)
		loc = time.UTC
	}

	st := store.New(db)
	notifier := notify.FromConfig(cfg, log)
	wk := worker.New(st, notifier, log, loc)
	handler := api.New(st, wk, log, cfg)

	log.Info("CuidarMed backend starting", "port", cfg.HTTPPort, "timezone", loc.String())
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Error("server error", "err", err)
		os.Exit(1)
	}
}
