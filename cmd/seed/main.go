package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"elverra-membership/internal/config"
	"elverra-membership/internal/domain/model"
	pg "elverra-membership/internal/infra/db/postgres"
	"elverra-membership/internal/infra/logging"
	"elverra-membership/internal/usecase"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Cycles []struct {
		Months int    `yaml:"months"`
		Label  string `yaml:"label"`
	} `yaml:"cycles"`
	Products []struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Kind    string `yaml:"kind"`
		Tier    string `yaml:"tier"`
		Pricing []struct {
			CycleMonths int   `yaml:"cycle_months"`
			Purchase    int64 `yaml:"purchase"`
			Renewal     int64 `yaml:"renewal"`
		} `yaml:"pricing"`
	} `yaml:"products"`
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	catalogPath := flag.String("catalog", "", "catalog YAML (defaults to the built-in catalog)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	raw := defaultCatalog
	if *catalogPath != "" {
		if raw, err = os.ReadFile(*catalogPath); err != nil {
			logger.Fatal().Err(err).Msg("read catalog")
		}
	}
	products, pricing, cycles, err := parseCatalog(raw, cfg.Payment.Currency)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse catalog")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	uc := usecase.NewProductUseCase(pg.NewProductRepo(pool), pg.NewSubscriptionRepo(pool), pg.NewTxManager(pool), logger)
	if err := uc.Seed(ctx, products, pricing, cycles); err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	for _, p := range products {
		logger.Info().Str("id", p.ID).Str("tier", string(p.Tier)).Msg("product seeded")
	}
	logger.Info().Int("products", len(products)).Int("prices", len(pricing)).Int("cycles", len(cycles)).Msg("seeding complete")
}

func parseCatalog(raw []byte, currency string) ([]*model.MembershipProduct, []*model.MembershipPricing, []*model.MembershipCycle, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, nil, err
	}
	var (
		products []*model.MembershipProduct
		pricing  []*model.MembershipPricing
		cycles   []*model.MembershipCycle
	)
	for _, c := range f.Cycles {
		cycles = append(cycles, &model.MembershipCycle{Months: c.Months, Label: c.Label})
	}
	for _, p := range f.Products {
		prod, err := model.NewMembershipProduct(p.ID, p.Name, model.ProductKind(p.Kind), model.ProductTier(p.Tier))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("product %q: %w", p.ID, err)
		}
		products = append(products, prod)
		for _, pr := range p.Pricing {
			pricing = append(pricing, &model.MembershipPricing{
				ProductID:     prod.ID,
				CycleMonths:   pr.CycleMonths,
				PurchasePrice: pr.Purchase,
				RenewalPrice:  pr.Renewal,
				Currency:      currency,
			})
		}
	}
	return products, pricing, cycles, nil
}
