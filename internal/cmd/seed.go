// internal/cmd/seed.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/javajoker/sevenfour-backend/internal/database"
	"github.com/javajoker/sevenfour-backend/internal/models"
	"github.com/javajoker/sevenfour-backend/internal/services"
)

type sampleProduct struct {
	id          uint64
	name        string
	description string
	productType string
	color       string
	price       string
	// stock per color, in S/M/L/XL order
	stock map[string][4]int
}

var sampleSizes = [4]string{"S", "M", "L", "XL"}

var sampleCatalog = []sampleProduct{
	{
		id:          640009057958,
		name:        "Seven Four Premium T-Shirt",
		description: "Heavyweight cotton tee with the Seven Four chest print.",
		productType: "t-shirts",
		color:       "Black",
		price:       "899.00",
		stock: map[string][4]int{
			"Black": {15, 20, 18, 12},
			"White": {10, 15, 12, 8},
		},
	},
	{
		id:          640009057965,
		name:        "Seven Four Streetwear Hoodie",
		description: "Fleece-lined pullover hoodie.",
		productType: "hoodies",
		color:       "Gray",
		price:       "1299.00",
		stock: map[string][4]int{
			"Gray": {8, 12, 15, 10},
			"Navy": {6, 10, 12, 8},
		},
	},
	{
		id:          640009057972,
		name:        "Seven Four Classic Shorts",
		description: "Drawstring shorts in washed twill.",
		productType: "shorts",
		color:       "Khaki",
		price:       "599.00",
		stock: map[string][4]int{
			"Khaki": {20, 25, 22, 15},
			"Black": {15, 20, 18, 12},
		},
	},
	{
		id:          640009057989,
		name:        "Seven Four Regular Polo",
		description: "Pique polo with embroidered logo.",
		productType: "t-shirts",
		color:       "White",
		price:       "799.00",
		stock: map[string][4]int{
			"White": {12, 16, 14, 10},
		},
	},
}

var sampleCouriers = []services.CourierRequest{
	{
		Name:                "Metro Express Riders",
		PhoneNumber:         "09171234567",
		VehicleType:         "motorcycle",
		MaxDeliveriesPerDay: 12,
		ServiceAreas:        []string{"Quezon City", "Manila"},
	},
	{
		Name:                "South Link Logistics",
		PhoneNumber:         "09281234567",
		VehicleType:         "van",
		MaxDeliveriesPerDay: 20,
		ServiceAreas:        []string{"Makati", "Taguig", "Pasay"},
	},
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the admin account, sample catalog and couriers",
		Long: `Creates the configured admin account when none exists, then adds the
sample catalog and couriers. Products and couriers that already exist are
left untouched, so the command can be run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.Close()

			if err := database.SeedInitialData(env.db, env.cfg.Admin); err != nil {
				return err
			}

			var admin models.User
			if err := env.db.Where("role = ?", models.UserRoleAdmin).Order("created_at").First(&admin).Error; err != nil {
				return fmt.Errorf("failed to find admin user: %w", err)
			}

			ctx := cmd.Context()
			created, err := seedCatalog(ctx, env.registry, admin.ID)
			if err != nil {
				return err
			}
			couriers, err := seedCouriers(ctx, env.registry)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Seed completed: %d products, %d couriers created\n", created, couriers)
			return nil
		},
	}
}

func seedCatalog(ctx context.Context, registry *services.Registry, adminID uuid.UUID) (int, error) {
	created := 0
	for _, sample := range sampleCatalog {
		if _, err := registry.Products.GetProductForAdmin(ctx, sample.id); err == nil {
			logrus.WithField("product_id", sample.id).Debug("Sample product exists, skipping")
			continue
		} else if !errors.Is(err, services.ErrNotFound) {
			return created, err
		}

		req := &services.CreateProductRequest{
			ID:          sample.id,
			Name:        sample.name,
			Description: sample.description,
			ProductType: sample.productType,
			Color:       sample.color,
			Price:       decimal.RequireFromString(sample.price),
		}
		for color, quantities := range sample.stock {
			for i, size := range sampleSizes {
				req.Variants = append(req.Variants, services.VariantStockRequest{
					Size:          size,
					Color:         color,
					StockQuantity: quantities[i],
				})
			}
		}

		if _, err := registry.Products.CreateProduct(ctx, req, adminID); err != nil {
			return created, fmt.Errorf("failed to seed product %d: %w", sample.id, err)
		}
		created++
	}
	return created, nil
}

func seedCouriers(ctx context.Context, registry *services.Registry) (int, error) {
	existing, err := registry.Couriers.List(ctx, "")
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for i := range sampleCouriers {
		if _, err := registry.Couriers.Create(ctx, &sampleCouriers[i]); err != nil {
			return i, fmt.Errorf("failed to seed courier %q: %w", sampleCouriers[i].Name, err)
		}
	}
	return len(sampleCouriers), nil
}
