package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/castai/kimportgen/cmd/kimportgen/app"
	"github.com/castai/kimportgen/config"
)

func NewGenerateCommand(version config.Version) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write imports.h, vars.h, common.h and one stub per kernel function",
		Args:  cobra.NoArgs,
	}

	configPath := cmd.Flags().String("config", "", "YAML config file")
	config.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(*configPath, cmd.Flags())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return app.New(cfg, version, afero.NewOsFs(), cmd.OutOrStdout(), cmd.ErrOrStderr()).Run(ctx)
	}
	return cmd
}

func NewTableCommand(version config.Version) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the reconciled import table without writing any files",
		Args:  cobra.NoArgs,
	}

	configPath := cmd.Flags().String("config", "", "YAML config file")
	showUnknown := cmd.Flags().Bool("show-unknown", false, "Include ordinals without a declaration")
	config.RegisterFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(*configPath, cmd.Flags())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return app.New(cfg, version, afero.NewOsFs(), cmd.OutOrStdout(), cmd.ErrOrStderr()).Table(ctx, *showUnknown)
	}
	return cmd
}

func NewVersionCommand(version config.Version) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
