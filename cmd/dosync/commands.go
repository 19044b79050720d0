package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	userID     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "dosync",
		Short:         "Recurring synchronization of catalog subscriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfig, "Path to the YAML config")
	root.PersistentFlags().StringVar(&opts.userID, "user", "", "User owning the subscriptions")

	root.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newCreateCmd(opts),
		newRemoveCmd(opts),
		newViewsCmd(opts),
		newTableCmd(opts),
	)
	return root
}

func requireUser(opts *rootOptions) error {
	if opts.userID == "" {
		return fmt.Errorf("--user is required")
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <subscription-id>",
		Short: "Print the sync status of a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(opts); err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			status, err := app.service(opts.userID).Evaluate(cmd.Context(), args[0])
			if err != nil {
				app.logger.Error().Err(err).Str("subscription_id", args[0]).Msg("evaluate sync status")
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "create <subscription-id>",
		Short: "Start syncing a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(opts); err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			status, err := app.service(opts.userID).CreateSync(cmd.Context(), args[0], force)
			if err != nil {
				app.logger.Error().Err(err).Str("subscription_id", args[0]).Msg("create sync")
				return err
			}
			return printJSON(cmd, status)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Retry even if the previous import failed")
	return cmd
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <subscription-id>",
		Short: "Stop syncing a subscription and delete its table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(opts); err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.service(opts.userID).RemoveSync(cmd.Context(), args[0]); err != nil {
				app.logger.Error().Err(err).Str("subscription_id", args[0]).Msg("remove sync")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "sync of %s removed\n", args[0])
			return err
		},
	}
}

func newViewsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "views <subscription-id>",
		Short: "Print the storage views backing a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(opts); err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			views, err := app.service(opts.userID).SubscriptionViews(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if views == nil {
				return fmt.Errorf("subscription %s has no resolvable views", args[0])
			}
			return printJSON(cmd, views)
		},
	}
}

func newTableCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "table <table-name>",
		Short: "Print the subscription a synced table comes from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(opts); err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer app.Close()

			subscriptionID, ok, err := app.service(opts.userID).SubscriptionFromSyncTable(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("table %s is not a subscription sync", args[0])
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), subscriptionID)
			return err
		},
	}
}
