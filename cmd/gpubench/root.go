package main

import (
	"github.com/spf13/cobra"

	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/check"
	"github.com/gladiaio/NVIDIA-GPU-Benchmarks/pkg/logger"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	opts := logger.Config{}

	cmd := &cobra.Command{
		Use:     "gpubench",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindEnv("GPUBENCH_", cmd); err != nil {
				return err
			}
			if err := check.Validate(opts); err != nil {
				return err
			}
			logger.SetLogrus(opts)
			return nil
		},
	}

	defaults := logger.DefaultConfig()
	cmd.PersistentFlags().StringVarP(&opts.Level, "level", "l", defaults.Level,
		"set the logging level (can be one of: debug, info, warn, error, or fatal)")
	cmd.PersistentFlags().BoolVar(&opts.Color, "color", defaults.Color, "enable colored output")
	cmd.PersistentFlags().BoolVar(&opts.Structured, "structured", defaults.Structured,
		"enable structured logging")

	cmd.AddCommand(newCompletionCmd())
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}
