// Command seed loads the Ghana statutory defaults for a tenant: PAYE
// brackets, SSNIT tiers, reliefs, the overtime/bonus config and the
// reserved statutory pay components.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ekowhinson/HRMS-sub001/pkg/config"
	"github.com/ekowhinson/HRMS-sub001/pkg/core/ratebook"
	"github.com/ekowhinson/HRMS-sub001/pkg/store"
)

func main() {
	tenant := flag.String("tenant", "", "tenant identifier (required)")
	from := flag.String("effective-from", "", "rate effective date, YYYY-MM-DD (default Jan 1 of this year)")
	flag.Parse()

	if *tenant == "" {
		fmt.Fprintln(os.Stderr, "usage: seed --tenant <id> [--effective-from YYYY-MM-DD]")
		os.Exit(2)
	}

	effectiveFrom := time.Date(time.Now().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	if *from != "" {
		parsed, err := time.Parse("2006-01-02", *from)
		if err != nil {
			log.Fatal().Str("effective-from", *from).Msg("expected YYYY-MM-DD")
		}
		effectiveFrom = parsed
	}

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

	ctx := store.WithTenant(context.Background(), *tenant)
	if err := ratebook.SeedGhanaDefaults(ctx, db, effectiveFrom); err != nil {
		log.Fatal().Err(err).Msg("statutory rate seed")
	}
	if err := ratebook.SeedStatutoryComponents(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("statutory component seed")
	}
	log.Info().Str("tenant", *tenant).Time("effective_from", effectiveFrom).
		Msg("Ghana statutory defaults seeded")
}
