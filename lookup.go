package main

import (
	"fmt"

	"github.com/nicebartender/starinfo/joincode"
	"github.com/nicebartender/starinfo/starblast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newLookupCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <link>",
		Short: "Print the reply the bot would post for a game link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(v)
			if err != nil {
				return err
			}
			setupLogging(cmd.ErrOrStderr(), cfg.LogLevel)

			ref, ok := joincode.Parse(args[0])
			if !ok {
				return fmt.Errorf("not a Starblast.io game link: %q", args[0])
			}

			summary, err := newSystemsClient(cfg).Lookup(cmd.Context(), ref)
			fmt.Fprintln(cmd.OutOrStdout(), starblast.FormatReply(summary, err))
			return nil
		},
	}
}
