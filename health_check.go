//go:build ignore

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fenilmodi00/nepal-ipo-radar/config"
	"github.com/fenilmodi00/nepal-ipo-radar/database"
	"github.com/fenilmodi00/nepal-ipo-radar/services"
	"github.com/fenilmodi00/nepal-ipo-radar/shared"
)

func main() {
	fmt.Printf("🏥 Nepal IPO Radar Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 50))

	cfg := config.LoadConfig()
	ctx := context.Background()

	healthScore := 0
	totalTests := 4

	// Test 1: Market data provider
	fmt.Print("📡 Market data provider: ")
	factory := shared.NewHTTPClientFactory(cfg.Settings.Provider.HTTPRequestTimeout)
	defer factory.CleanupAllClients()
	provider, err := services.NewMarketDataProvider(ctx, cfg, factory)
	if err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		fetchCtx, cancel := context.WithTimeout(ctx, cfg.Settings.Scan.Timeout)
		snapshot, err := provider.FetchSnapshot(fetchCtx)
		cancel()
		switch {
		case err != nil:
			fmt.Printf("❌ FAILED (%v)\n", err)
		case provider.Name() == config.ProviderNone:
			fmt.Println("⚠️  NOT CONFIGURED (no API key)")
		default:
			fmt.Printf("✅ OK (%s, %d IPOs, %d rejected)\n", provider.Name(), len(snapshot.Records), snapshot.Rejected)
			healthScore++
		}
	}

	// Test 2: Database schema
	fmt.Print("🗄️  Database: ")
	if cfg.DatabaseURL == "" {
		fmt.Println("⚠️  NOT CONFIGURED (in-memory store)")
	} else if db, err := database.Connect(cfg.DatabaseURL); err != nil {
		fmt.Printf("❌ FAILED (%v)\n", err)
	} else {
		if err := database.VerifySchema(ctx, db); err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			fmt.Println("✅ OK")
			healthScore++
		}

		// Test 3: Stored records
		fmt.Print("📊 Stored records: ")
		store := database.NewPostgresRecordStore(db, cfg.Settings.Database.MaxRetries)
		if records, err := store.ListAll(ctx); err != nil {
			fmt.Printf("❌ FAILED (%v)\n", err)
		} else {
			fmt.Printf("✅ OK (%d records, %d alertable)\n", len(records), len(services.AlertableRecords(records)))
			healthScore++
		}
		database.Close(db)
	}

	// Test 4: Email alerts
	fmt.Print("✉️  Email alerts: ")
	if cfg.EmailConfigured() {
		fmt.Printf("✅ OK (%s:%d)\n", cfg.Settings.Email.SMTPHost, cfg.Settings.Email.SMTPPort)
		healthScore++
	} else {
		fmt.Println("⚠️  NOT CONFIGURED")
	}

	// Overall health
	fmt.Println(strings.Repeat("-", 50))
	healthPercent := float64(healthScore) / float64(totalTests) * 100

	if healthScore == totalTests {
		fmt.Printf("🎉 SYSTEM HEALTHY: %d/%d checks passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else if healthScore >= totalTests/2 {
		fmt.Printf("⚠️  SYSTEM DEGRADED: %d/%d checks passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	} else {
		fmt.Printf("❌ SYSTEM UNHEALTHY: %d/%d checks passed (%.0f%%)\n", healthScore, totalTests, healthPercent)
	}

	fmt.Printf("⏰ Check completed at: %s\n", time.Now().Format("15:04:05"))
}
