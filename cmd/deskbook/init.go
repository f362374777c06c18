package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty reservation workbook",
		Long:  `Creates the data file with all sheets and header rows. An existing file is left untouched.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.bootstrap()
			if err != nil {
				return err
			}
			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Init(cmd.Context()); err != nil {
				return fmt.Errorf("initialize store: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workbook ready at %s\n", store.DataFile())
			return nil
		},
	}
}
