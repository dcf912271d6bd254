package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/ncecere/usage_console/internal/config"
	"github.com/ncecere/usage_console/internal/pricing"
	adminpricingsvc "github.com/ncecere/usage_console/internal/services/adminpricing"
)

// dumpconfig prints the effective configuration and the price sheet it
// produces. Secrets are omitted by the config json tags.
func main() {
	configFile := flag.String("config", "", "path to console.yaml")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	table, err := adminpricingsvc.SeedTable(cfg.Pricing)
	if err != nil {
		log.Fatalf("build pricing table: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Config  *config.Config                     `json:"config"`
		Markup  string                             `json:"markup"`
		Pricing map[pricing.Family][]pricing.Entry `json:"pricing"`
	}{
		Config:  cfg,
		Markup:  adminpricingsvc.Markup(cfg.Pricing).String(),
		Pricing: table.Snapshot(),
	}); err != nil {
		log.Fatalf("encode: %v", err)
	}
}
