package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bgv/internal/platform/config"
	"bgv/internal/platform/logger"
	"bgv/internal/platform/postgres"
	tenantservice "bgv/internal/tenant/service"
	tenantstore "bgv/internal/tenant/store/tenant"
	"bgv/internal/verification/notify"
	"bgv/internal/verification/service"
	pgstore "bgv/internal/verification/store/postgres"
	id "bgv/pkg/domain"
)

func newSweepCmd() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the SLA sweep once",
		Long:  "Evaluates SLA state for one tenant, or for every active tenant when --tenant is omitted, and prints the summary.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, tenant)
		},
	}

	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Tenant ID to sweep")
	return cmd
}

func runSweep(cmd *cobra.Command, tenant string) error {
	ctx := cmd.Context()
	var tenantID id.TenantID
	if tenant != "" {
		parsed, err := id.ParseTenantID(tenant)
		if err != nil {
			return fmt.Errorf("invalid --tenant: %w", err)
		}
		tenantID = parsed
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Postgres.URL == "" {
		return errors.New("DATABASE_URL is required to sweep")
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel)

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("opening postgres: %w", err)
	}
	defer db.Close()

	store := pgstore.New(db)
	tenants, err := tenantservice.New(tenantstore.NewPostgres(db),
		tenantservice.WithLogger(log),
		tenantservice.WithCaseDirectory(store),
	)
	if err != nil {
		return err
	}
	svc, err := service.New(store, store,
		service.WithLogger(log),
		service.WithNotifier(notify.NewLogNotifier(log)),
		service.WithTenantDirectory(tenants),
		service.WithSweepConcurrency(cfg.Scheduler.MaxConcurrency),
	)
	if err != nil {
		return err
	}

	var summary service.SweepSummary
	if tenantID.IsNil() {
		summary, err = svc.SweepAll(ctx)
	} else {
		summary, err = svc.SweepSLAs(ctx, tenantID)
	}
	if err != nil {
		return fmt.Errorf("sweeping: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
