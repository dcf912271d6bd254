package main

import (
	"context"
	"flag"
	"log"

	"github.com/ncecere/usage_console/internal/config"
	"github.com/ncecere/usage_console/internal/database"
	"github.com/ncecere/usage_console/internal/db"
	"github.com/ncecere/usage_console/internal/pricing"
	adminpricingsvc "github.com/ncecere/usage_console/internal/services/adminpricing"
)

// seedpricing writes the configured price entries into pricing_overrides so
// they survive config changes. --defaults also writes the built-in sheet.
func main() {
	configFile := flag.String("config", "", "path to console.yaml")
	withDefaults := flag.Bool("defaults", false, "also seed the built-in price sheet")
	actor := flag.String("actor", "seedpricing", "recorded as updated_by")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(ctx, cfg.Database); err != nil {
			log.Fatalf("run migrations: %v", err)
		}
	}
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	table, err := adminpricingsvc.SeedTable(cfg.Pricing)
	if err != nil {
		log.Fatalf("build pricing table: %v", err)
	}
	calc := pricing.NewCalculator(table, adminpricingsvc.Markup(cfg.Pricing))
	svc := adminpricingsvc.NewService(calc, db.New(pool), cfg.Pricing.Currency)

	entries := adminpricingsvc.ConfigEntries(cfg.Pricing)
	if *withDefaults {
		entries = adminpricingsvc.SeedEntries(cfg.Pricing)
	}
	written, err := svc.Seed(ctx, entries, *actor)
	if err != nil {
		log.Fatalf("seed pricing: %v", err)
	}
	log.Printf("seeded %d pricing entries", written)
}
