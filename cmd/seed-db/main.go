package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/price-engine/internal/domain/promo"
	"github.com/xenking/price-engine/internal/handler"
	"github.com/xenking/price-engine/internal/repository"
)

type catalogJSON struct {
	Products []struct {
		ID             string          `json:"id"`
		Name           string          `json:"name"`
		BasePrice      decimal.Decimal `json:"basePrice"`
		CategoryID     string          `json:"categoryId"`
		ManufacturerID string          `json:"manufacturerId"`
	} `json:"products"`
	Customers []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Tier string `json:"tier"`
		Type string `json:"type"`
	} `json:"customers"`
	Tiers map[string]decimal.Decimal `json:"tiers"`
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or PRICE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PRICE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PRICE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PRICE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PRICE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCatalog(ctx, pool, catalogFile); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	if err := seedRules(ctx, pool); err != nil {
		return errors.Wrap(err, "seed price rules")
	}

	if err := seedPromotions(ctx, pool); err != nil {
		return errors.Wrap(err, "seed promotions")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, catalogFile string) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}

	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(catalog.Products)))

	for _, p := range catalog.Products {
		_, err := pool.Exec(ctx, `INSERT INTO products (id, name, base_price, category_id, manufacturer_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, base_price = EXCLUDED.base_price,
				category_id = EXCLUDED.category_id, manufacturer_id = EXCLUDED.manufacturer_id`,
			p.ID, p.Name, p.BasePrice, p.CategoryID, p.ManufacturerID,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
	}

	slog.Info("upserting customers", slog.Int("count", len(catalog.Customers)))

	for _, c := range catalog.Customers {
		_, err := pool.Exec(ctx, `INSERT INTO customers (id, name, tier, type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, tier = EXCLUDED.tier, type = EXCLUDED.type`,
			c.ID, c.Name, c.Tier, c.Type,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert customer %s", c.ID)
		}
	}

	slog.Info("upserting tier pricing", slog.Int("count", len(catalog.Tiers)))

	for tier, percent := range catalog.Tiers {
		_, err := pool.Exec(ctx, `INSERT INTO tier_pricing (tier, discount_percent)
			VALUES ($1, $2)
			ON CONFLICT (tier) DO UPDATE SET discount_percent = EXCLUDED.discount_percent`,
			tier, percent,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert tier %s", tier)
		}
	}

	return nil
}

func seedRules(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding example price rules")

	type seedRule struct {
		id, scope, target, discountType string
		value                           decimal.Decimal
		priority                        int
	}

	rules := []seedRule{
		{id: "electronics-5", scope: "category", target: "electronics", discountType: "percentage", value: decimal.NewFromInt(5), priority: 10},
		{id: "wholesale-8", scope: "customer_type", target: "wholesale", discountType: "percentage", value: decimal.NewFromInt(8), priority: 5},
	}

	for _, r := range rules {
		_, err := pool.Exec(ctx, `INSERT INTO price_rules (id, scope, target, discount_type, value, priority, active)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE)
			ON CONFLICT (id) DO UPDATE SET scope = EXCLUDED.scope, target = EXCLUDED.target,
				discount_type = EXCLUDED.discount_type, value = EXCLUDED.value, priority = EXCLUDED.priority`,
			r.id, r.scope, r.target, r.discountType, r.value, r.priority,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert rule %s", r.id)
		}

		slog.Info("upserted rule", slog.String("id", r.id))
	}

	return nil
}

func seedPromotions(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding example promotions")

	promos := repository.NewPromotionRepository(pool)
	end := time.Now().AddDate(1, 0, 0)

	seeds := []*promo.Promotion{
		{
			Code:                  "WELCOME10",
			Name:                  "Welcome: 10% off",
			Type:                  promo.TypePercentage,
			Value:                 decimal.NewFromInt(10),
			EndDate:               &end,
			MaxUsagePerCustomer:   1,
			RequiresCode:          true,
			AppliesToAllProducts:  true,
			AppliesToAllCustomers: true,
			StackWithTierPricing:  true,
			Active:                true,
		},
		{
			Code:                  "TAKE15",
			Name:                  "15.00 off orders over 100.00",
			Type:                  promo.TypeFixed,
			Value:                 decimal.NewFromInt(15),
			MinOrderAmount:        decimal.NewFromInt(100),
			EndDate:               &end,
			RequiresCode:          true,
			AppliesToAllProducts:  true,
			AppliesToAllCustomers: true,
			StackWithTierPricing:  true,
			Active:                true,
		},
	}

	for _, p := range seeds {
		if err := promos.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", p.Code)
		}

		slog.Info("upserted promotion", slog.String("code", p.Code), slog.String("name", p.Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding default API key")

	keyHash := handler.HashKey([]byte(pepper), apiKey)

	_, err := pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, scopes, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, scopes = EXCLUDED.scopes, active = TRUE`,
		uuid.New().String(), keyHash, "Default test key", []string{"calculate", "commit"},
	)
	if err != nil {
		return errors.Wrap(err, "upsert default API key")
	}

	slog.Info("upserted API key", slog.String("name", "Default test key"))

	return nil
}
