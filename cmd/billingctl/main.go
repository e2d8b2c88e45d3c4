package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/ManuelReschke/BillingStore/app/models"
	"github.com/ManuelReschke/BillingStore/app/repository"
	"github.com/ManuelReschke/BillingStore/internal/pkg/billing"
	"github.com/ManuelReschke/BillingStore/internal/pkg/cache"
	"github.com/ManuelReschke/BillingStore/internal/pkg/database"
	"github.com/ManuelReschke/BillingStore/internal/pkg/env"
	"github.com/ManuelReschke/BillingStore/internal/pkg/integrity"
	"github.com/ManuelReschke/BillingStore/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/BillingStore/internal/pkg/security"
)

func main() {
	env.SetupEnvFile()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	ctx := context.Background()

	switch os.Args[1] {
	case "integrity":
		mustConnectDatabase()
		report, err := integrity.Run(ctx, database.GetDB())
		if err != nil {
			log.Fatalf("Integrity audit failed: %v", err)
		}
		if len(os.Args) > 2 && os.Args[2] == "--json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				log.Fatalf("Failed to write report: %v", err)
			}
		} else {
			for _, v := range report.Violations {
				fmt.Printf("%-7s %-26s %s: %s\n", v.Severity, v.Check, v.Subject, v.Detail)
			}
			fmt.Printf("%d errors, %d warnings\n", report.Errors(), report.Warnings())
		}
		if !report.OK() {
			os.Exit(1)
		}

	case "plans":
		if len(os.Args) < 3 {
			log.Fatalf("Please provide an app id")
		}
		mustConnectDatabase()
		plans, err := billing.NewService(database.GetDB()).AvailablePlans(ctx, os.Args[2])
		if err != nil {
			log.Fatalf("Failed to list plans: %v", err)
		}
		for _, p := range plans {
			fmt.Printf("%-36s %10s %s/%d %-13s %v\n", p.ID, p.Amount.StringFixed(2)+" "+p.Currency, p.Interval, p.IntervalCount, p.PlanType, []string(p.PaymentGateways))
		}

	case "subscriptions":
		if len(os.Args) < 4 {
			log.Fatalf("Please provide a user id and an app id")
		}
		mustConnectDatabase()
		subs, err := repository.GetGlobalFactory().GetSubscriptionRepository().ListByUser(os.Args[2], os.Args[3])
		if err != nil {
			log.Fatalf("Failed to list subscriptions: %v", err)
		}
		for _, sub := range subs {
			end := "-"
			if sub.CurrentPeriodEnd != nil {
				end = sub.CurrentPeriodEnd.UTC().Format("2006-01-02")
			}
			fmt.Printf("%-38s %-36s %-15s %-9s %s\n", sub.ID, sub.PlanID, sub.Status, sub.Gateway(), end)
		}

	case "invoices":
		if len(os.Args) < 4 {
			log.Fatalf("Please provide a user id and an app id")
		}
		mustConnectDatabase()
		invoices, err := repository.GetGlobalFactory().GetInvoiceRepository().ListByUserAndApp(os.Args[2], os.Args[3])
		if err != nil {
			log.Fatalf("Failed to list invoices: %v", err)
		}
		for _, inv := range invoices {
			fmt.Printf("%-38s %-38s %12s %-8s %s\n", inv.ID, inv.SubscriptionID, inv.Amount.StringFixed(2)+" "+inv.Currency, inv.Status, inv.InvoiceDate.UTC().Format("2006-01-02"))
		}

	case "quota":
		if len(os.Args) < 5 {
			log.Fatalf("Please provide a user id, a subscription id and an app id")
		}
		mustConnectDatabase()
		usage, err := repository.GetGlobalFactory().GetUsageRepository().GetLatestQuota(os.Args[2], os.Args[3], os.Args[4])
		if err != nil {
			log.Fatalf("Failed to read quota: %v", err)
		}
		fmt.Printf("period %s .. %s\n", usage.BillingPeriodStart.UTC().Format("2006-01-02"), usage.BillingPeriodEnd.UTC().Format("2006-01-02"))
		for _, res := range []string{models.ResourceDocumentPages, models.ResourcePerplexityRequests, models.ResourceRequests} {
			fmt.Printf("%-20s %6d remaining, %6d from add-ons\n", res, usage.Remaining(res), usage.AddonUnits(res))
		}

	case "webhook-seen":
		if len(os.Args) < 4 {
			log.Fatalf("Please provide a provider and an event id")
		}
		mustConnectDatabase()
		seen, err := repository.GetGlobalFactory().GetWebhookRepository().IsProcessed(os.Args[3], os.Args[2])
		if err != nil {
			log.Fatalf("Failed to look up webhook event: %v", err)
		}
		fmt.Println(seen)
		if !seen {
			os.Exit(1)
		}

	case "purge-tokens":
		mustSetupDatabase()
		cache.SetupCache()
		box, err := security.NewTokenBox(env.GetEnv("TOKEN_ENCRYPTION_KEY", ""))
		if err != nil {
			log.Fatalf("Invalid TOKEN_ENCRYPTION_KEY: %v", err)
		}
		tokens := billing.NewTokenCache(database.GetDB(), box, cache.GetClient())
		n, err := tokens.Purge(ctx)
		if err != nil {
			log.Fatalf("Failed to purge tokens: %v", err)
		}
		if err := tokens.Invalidate(ctx, env.GetEnv("PAYPAL_ENVIRONMENT", "sandbox")); err != nil {
			log.Printf("Failed to drop cached token: %v", err)
		}
		log.Printf("Purged %d expired tokens", n)

	case "webhook-stats":
		if len(os.Args) < 3 {
			log.Fatalf("Please provide a provider")
		}
		cache.SetupCache()
		c := counter.NewWebhookCounter(cache.GetClient())
		var (
			counts map[string]int64
			err    error
		)
		if len(os.Args) > 3 && os.Args[3] == "--drain" {
			counts, err = c.Drain(ctx, os.Args[2])
		} else {
			counts, err = c.Snapshot(ctx, os.Args[2])
		}
		if err != nil {
			log.Fatalf("Failed to read webhook counters: %v", err)
		}
		outcomes := make([]string, 0, len(counts))
		for o := range counts {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		for _, o := range outcomes {
			fmt.Printf("%-10s %d\n", o, counts[o])
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func mustSetupDatabase() {
	if err := database.SetupDatabase(); err != nil {
		log.Fatalf("Failed to set up database: %v", err)
	}
	repository.InitializeFactory(database.GetDB())
}

// mustConnectDatabase opens the database for read-only commands; the schema
// is left as it is.
func mustConnectDatabase() {
	if _, err := database.Connect(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	repository.InitializeFactory(database.GetDB())
}

func printUsage() {
	fmt.Println("Usage: go run cmd/billingctl/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  integrity [--json]           - audit the billing tables, exit 1 on errors")
	fmt.Println("  plans APP                    - list the active plans of an app")
	fmt.Println("  subscriptions USER APP       - list the subscriptions of a user, newest first")
	fmt.Println("  invoices USER APP            - show the billing history of a user")
	fmt.Println("  quota USER SUBSCRIPTION APP  - show the current quota of a subscription")
	fmt.Println("  webhook-seen PROVIDER EVENT  - report whether an event was processed, exit 1 if not")
	fmt.Println("  purge-tokens                 - delete expired gateway access tokens")
	fmt.Println("  webhook-stats PROVIDER [--drain] - show (and reset) webhook delivery counters")
}
