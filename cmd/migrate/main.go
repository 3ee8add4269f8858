package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"zalo-hub/config"
	"zalo-hub/internal/repository"
	"zalo-hub/pkg/database"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Zalo Hub - Database CLI Tool",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		database.Connect(config.LoadConfig())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		database.Close()
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create or update every table",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("🚀 Running migrations UP...")
		if err := repository.InitSchema(database.DB); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		log.Println("✅ Migrations completed successfully!")
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database connection status and row counts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("🔍 Checking database status...")

		if err := database.Ping(); err != nil {
			log.Fatalf("❌ Database connection failed: %v", err)
		}
		log.Println("✅ Database connection: OK")

		for _, table := range repository.Tables() {
			exists, err := database.TableExists(table)
			if err != nil {
				log.Printf("⚠️  Error checking table %s: %v", table, err)
				continue
			}
			if !exists {
				log.Printf("❌ Table %-22s does not exist", table)
				continue
			}
			count, _ := database.GetTableCount(table)
			log.Printf("✅ Table %-22s exists (%d rows)", table, count)
		}

		if err := database.HealthCheck(); err != nil {
			log.Printf("⚠️  Health check warning: %v", err)
		} else {
			log.Println("✅ Health check: PASSED")
		}
	},
}

var seedDevCmd = &cobra.Command{
	Use:   "seed-dev",
	Short: "Seed with development accounts, contacts and messages",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("🌱 Seeding database (development mode)...")

		var (
			result *database.SeedResult
			err    error
		)
		ctx := context.Background()
		if reset, _ := cmd.Flags().GetBool("reset"); reset {
			log.Println("⚠️  WARNING: existing rows will be deleted first!")
			cfg := database.DefaultSeedConfig()
			cfg.AccountCount = 3
			cfg.FriendsPerAccount = 5
			result, err = database.ClearAndReseed(ctx, database.DB, repository.Tables(), cfg)
		} else {
			result, err = database.SeedDevelopment(ctx, database.DB)
		}
		if err != nil {
			log.Fatalf("❌ Seeding failed: %v", err)
		}

		log.Println("📊 Seed Summary:")
		log.Printf("   - Accounts: %d", len(result.Accounts))
		log.Printf("   - Friends: %d", len(result.Friends))
		log.Printf("   - Conversations: %d", len(result.Conversations))
		log.Printf("   - Messages: %d", result.Messages)
		log.Println("✅ Development seeding completed!")
	},
}

var truncateCmd = &cobra.Command{
	Use:   "truncate",
	Short: "Delete every row from every table (DANGEROUS)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("⚠️  WARNING: This will TRUNCATE all tables!")
		if err := database.TruncateTables(repository.Tables()); err != nil {
			log.Fatalf("❌ Truncate failed: %v", err)
		}
		log.Println("✅ All tables truncated!")
	},
}

func init() {
	seedDevCmd.Flags().Bool("reset", false, "truncate all tables before seeding")
	rootCmd.AddCommand(upCmd, statusCmd, seedDevCmd, truncateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
