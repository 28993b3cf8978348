package main

import (
	"context"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ekowhinson/HRMS-sub001/pkg/api/payroll"
	"github.com/ekowhinson/HRMS-sub001/pkg/config"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/backpay"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/importer"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/payout"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/run"
	"github.com/ekowhinson/HRMS-sub001/pkg/progress"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
	"gorm.io/gorm"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection")
	}
	if err := store.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("schema migration")
	}

	prog := progress.NewStore(cfg.ProgressTTL)
	orch := run.New(db, prog)
	bp := backpay.New(db)
	orch.Backpay = bp
	imp := importer.New(db, &importer.GeminiCollaborator{Model: cfg.GeminiModel}, prog)
	po := payout.New(db)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 10m", prog.Sweep); err != nil {
		log.Fatal().Err(err).Msg("progress sweep schedule")
	}
	if _, err := scheduler.AddFunc(cfg.DetectorSchedule, func() {
		scanAllTenants(db, bp)
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.DetectorSchedule).Msg("detector schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := payroll.NewHandler(orch, bp, imp, po)
	r.Mount("/api/payroll", handler.Routes())

	log.Info().Str("addr", cfg.ListenAddr).Msg("payroll API listening")
	if err := http.ListenAndServe(cfg.ListenAddr, r); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

// scanAllTenants runs the retroactive-change detector for every tenant
// that has employees on file.
func scanAllTenants(db *gorm.DB, bp *backpay.Engine) {
	var tenants []string
	if err := db.Table("employees").
		Where("is_deleted = ?", false).
		Distinct("tenant_id").
		Pluck("tenant_id", &tenants).Error; err != nil {
		log.Error().Err(err).Msg("tenant listing for detector scan failed")
		return
	}
	for _, tenant := range tenants {
		ctx := store.WithTenant(context.Background(), tenant)
		candidates, err := bp.Scan(ctx)
		if err != nil {
			log.Error().Err(err).Str("tenant", tenant).Msg("detector scan failed")
			continue
		}
		if len(candidates) > 0 {
			log.Info().Str("tenant", tenant).Int("candidates", len(candidates)).
				Msg("retroactive changes detected")
		}
	}
}
