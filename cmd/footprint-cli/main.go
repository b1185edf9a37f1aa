package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/verdantlabs/footprint/internal/activities"
	"github.com/verdantlabs/footprint/internal/api"
	"github.com/verdantlabs/footprint/internal/authclient"
	"github.com/verdantlabs/footprint/internal/config"
	"github.com/verdantlabs/footprint/internal/identity"
	"github.com/verdantlabs/footprint/internal/logging"
	"github.com/verdantlabs/footprint/internal/state"
	"github.com/verdantlabs/footprint/internal/stubserver"
	"github.com/verdantlabs/footprint/internal/views"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "footprint-cli",
		Short: "Personal carbon footprint tracker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newSignUpCmd(),
		newSignInCmd(),
		newSignOutCmd(),
		newWhoAmICmd(),
		newLogCmd(),
		newEstimateCmd(),
		newListCmd(),
		newEditCmd(),
		newDeleteCmd(),
		newSummaryCmd(),
		newBreakdownCmd(),
		newTrendCmd(),
		newRegionsCmd(),
		newCompareCmd(),
		newDevServerCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("api-url", defaults.GetString("api.base_url"), "Footprint API base URL")
	cmd.PersistentFlags().String("auth-url", defaults.GetString("auth.base_url"), "Identity provider base URL")
	cmd.PersistentFlags().String("auth-key", defaults.GetString("auth.api_key"), "Identity provider API key")
	cmd.PersistentFlags().String("state-path", defaults.GetString("state.path"), "Local state database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("limit", defaults.GetInt("activities.limit"), "Activity list limit")

	bindFlag(cmd, "api.base_url", "api-url")
	bindFlag(cmd, "auth.base_url", "auth-url")
	bindFlag(cmd, "auth.api_key", "auth-key")
	bindFlag(cmd, "state.path", "state-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "activities.limit", "limit")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// app wires the client core together for one command invocation.
type app struct {
	cfg         config.AppConfig
	logger      *zap.Logger
	manager     *identity.Manager
	client      *api.Client
	coordinator *activities.Coordinator
	views       *views.Cache
	closeDB     func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewCLILogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := state.OpenSQLite(cfg.StatePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	store, err := state.NewStore(db)
	if err != nil {
		return nil, err
	}

	provider, err := authclient.NewClient(authclient.Config{
		BaseURL:    cfg.AuthBaseURL,
		APIKey:     cfg.AuthAPIKey,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	manager, err := identity.NewManager(identity.ManagerConfig{
		Provider:   provider,
		Store:      store,
		IDProvider: identity.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	client, err := api.NewClient(api.ClientConfig{
		BaseURL:     cfg.APIBaseURL,
		Credentials: manager,
		HTTPClient:  &http.Client{Timeout: cfg.RequestTimeout},
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	manager.SetMigrator(client)

	viewCache, err := views.NewCache(views.CacheConfig{
		Backend:  client,
		Identity: manager,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	coordinator, err := activities.NewCoordinator(activities.CoordinatorConfig{
		Backend:     client,
		Identity:    manager,
		Invalidator: viewCache,
		Logger:      logger,
		ListLimit:   cfg.ListLimit,
	})
	if err != nil {
		return nil, err
	}

	if err := manager.Initialize(ctx); err != nil {
		return nil, err
	}

	return &app{
		cfg:         cfg,
		logger:      logger,
		manager:     manager,
		client:      client,
		coordinator: coordinator,
		views:       viewCache,
		closeDB:     sqlDB.Close,
	}, nil
}

func (a *app) close() {
	a.logger.Sync() //nolint:errcheck
	if a.closeDB != nil {
		a.closeDB() //nolint:errcheck
	}
}

func runWithApp(run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return run(cmd.Context(), a, cmd, args)
	}
}

func newSignUpCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account with email and password",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if err := a.manager.SignUp(ctx, email, password); err != nil {
				return err
			}
			user, _ := a.manager.CurrentUser()
			fmt.Fprintf(cmd.OutOrStdout(), "signed up as %s\n", user.Email)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}

func newSignInCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in; guest activities are migrated to the account",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if err := a.manager.SignIn(ctx, email, password); err != nil {
				return err
			}
			user, _ := a.manager.CurrentUser()
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", user.Email)
			// Migration runs on a detached goroutine; give it a moment so the
			// short-lived CLI process does not drop it. Failure stays silent.
			time.Sleep(500 * time.Millisecond)
			return nil
		}),
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}

func newSignOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Sign out and start a fresh guest session",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if err := a.manager.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed out; new guest session %s\n", a.manager.SessionID())
			return nil
		}),
	}
}

func newWhoAmICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current identity",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			if user, ok := a.manager.CurrentUser(); ok {
				profile, err := a.client.CurrentUser(ctx)
				if err != nil {
					a.logger.Warn("profile fetch failed, using cached identity", zap.Error(err))
					fmt.Fprintf(cmd.OutOrStdout(), "authenticated as %s\n", user.Email)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "authenticated as %s (since %s)\n",
					profile.Email, profile.CreatedAt.Format("2006-01-02"))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "guest session %s\n", a.manager.SessionID())
			return nil
		}),
	}
}

func activityFlags(cmd *cobra.Command, category, activityType *string, value *float64, date, notes *string) {
	if category != nil {
		cmd.Flags().StringVar(category, "category", "", "Category: transport, energy or food")
	}
	cmd.Flags().StringVar(activityType, "type", "", "Activity type, e.g. bus, electricity, beef")
	cmd.Flags().Float64Var(value, "value", 0, "Magnitude in the category's unit")
	cmd.Flags().StringVar(date, "date", time.Now().Format("2006-01-02"), "Activity date (YYYY-MM-DD)")
	cmd.Flags().StringVar(notes, "notes", "", "Optional notes")
}

func newLogCmd() *cobra.Command {
	var category, activityType, date, notes string
	var value float64
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a carbon-emitting activity",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			created, err := a.coordinator.Create(ctx, api.ActivityInput{
				Category: category,
				Type:     activityType,
				Value:    value,
				Date:     date,
				Notes:    notes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged %s %s: %.2f kg CO2e (id %s)\n",
				created.Category, created.Type, created.CO2eKg, created.ID)
			return nil
		}),
	}
	activityFlags(cmd, &category, &activityType, &value, &date, &notes)
	return cmd
}

func newEstimateCmd() *cobra.Command {
	var category, activityType, date, notes string
	var value float64
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Preview the CO2e of an activity without logging it",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			input := api.ActivityInput{
				Category: category,
				Type:     activityType,
				Value:    value,
				Date:     date,
				Notes:    notes,
			}
			if err := activities.ValidateInput(input); err != nil {
				return err
			}
			factors, err := a.client.EmissionFactors(ctx, category)
			if err != nil {
				return err
			}
			preview, ok := activities.PreviewCO2e(input, factors)
			if !ok {
				return fmt.Errorf("no emission factor for %s/%s", category, activityType)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "estimated %.2f kg CO2e (unconfirmed; the server value is authoritative)\n", preview)
			return nil
		}),
	}
	activityFlags(cmd, &category, &activityType, &value, &date, &notes)
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List activities for the current identity",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			collection, err := a.coordinator.List(ctx)
			if err != nil {
				return err
			}
			if len(collection) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no activities yet")
				return nil
			}
			for _, activity := range collection {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-16s %8.2f  %6.2f kg  %s\n",
					activity.Date, activity.Category, activity.Type, activity.Value, activity.CO2eKg, activity.ID)
			}
			return nil
		}),
	}
}

func newEditCmd() *cobra.Command {
	var activityType, date, notes string
	var value float64
	cmd := &cobra.Command{
		Use:   "edit <activity-id>",
		Short: "Edit an activity; the server recalculates CO2e",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			updated, err := a.coordinator.Update(ctx, args[0], api.ActivityUpdate{
				Type:  activityType,
				Value: value,
				Date:  date,
				Notes: notes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s: %.2f kg CO2e\n", updated.ID, updated.CO2eKg)
			return nil
		}),
	}
	activityFlags(cmd, nil, &activityType, &value, &date, &notes)
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <activity-id>",
		Short: "Delete an activity",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			if err := a.coordinator.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		}),
	}
}

func addPeriodFlag(cmd *cobra.Command, period *string) {
	cmd.Flags().StringVar(period, "period", "month", "Period: day, week, month, year or all")
}

func newSummaryCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the footprint summary for a period",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			summary, err := a.views.Summary(ctx, period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"%s (%s to %s): %.2f kg CO2e over %d activities (%.2f kg/day, %+.1f%% vs previous)\n",
				summary.Period, summary.StartDate, summary.EndDate, summary.TotalCO2eKg,
				summary.ActivityCount, summary.AverageDailyCO2eKg, summary.ChangePercentage)
			return nil
		}),
	}
	addPeriodFlag(cmd, &period)
	return cmd
}

func newBreakdownCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Show the per-category breakdown for a period",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			breakdown, err := a.views.Breakdown(ctx, period)
			if err != nil {
				return err
			}
			for _, item := range breakdown.Breakdown {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %8.2f kg  %5.1f%%  (%d activities)\n",
					item.Category, item.CO2eKg, item.Percentage, item.ActivityCount)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total      %8.2f kg\n", breakdown.TotalCO2eKg)
			return nil
		}),
	}
	addPeriodFlag(cmd, &period)
	return cmd
}

func newTrendCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show the emissions trend for a period",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			trend, err := a.views.Trend(ctx, period)
			if err != nil {
				return err
			}
			for _, point := range trend.DataPoints {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %8.2f kg  (%d activities)\n",
					point.Date, point.CO2eKg, point.ActivityCount)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "total %.2f kg, average %.2f kg per day\n",
				trend.TotalCO2eKg, trend.AverageCO2eKg)
			return nil
		}),
	}
	addPeriodFlag(cmd, &period)
	return cmd
}

func newRegionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List comparison regions",
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, _ []string) error {
			catalog, err := a.views.Regions(ctx)
			if err != nil {
				return err
			}
			for _, region := range catalog {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-20s %8.0f kg/year\n",
					region.Code, region.Name, region.AverageAnnualCO2eKg)
			}
			return nil
		}),
	}
}

func newCompareCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "compare <region-code>",
		Short: "Compare your footprint against a regional average",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
			comparison, err := a.views.Compare(ctx, args[0], period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "you: %.2f kg vs %s average: rated %s (%+.1f%%)\n",
				comparison.UserFootprint.TotalCO2eKg,
				comparison.RegionalAverage.RegionName,
				comparison.Metrics.Rating,
				comparison.Metrics.DifferencePercentage)
			for _, insight := range comparison.Metrics.Insights {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", insight)
			}
			return nil
		}),
	}
	addPeriodFlag(cmd, &period)
	return cmd
}

func newDevServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devserver",
		Short: "Run the in-memory stub API for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			handler, err := stubserver.NewHTTPHandler(stubserver.Dependencies{
				SigningSecret: []byte(cfg.StubSecret),
				Logger:        logger,
			})
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:    cfg.StubAddress,
				Handler: handler,
			}

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("stub server starting", zap.String("address", cfg.StubAddress))
				err := httpServer.ListenAndServe()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-signalCtx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
}
