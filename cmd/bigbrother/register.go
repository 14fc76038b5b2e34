package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bigbrother/internal/app"
	logx "bigbrother/pkg/logx"
)

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register-commands",
		Short: "Overwrite the slash commands (on the development guild when configured)",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.RegisterCommands(cmd.Context(), cfgPath, logx.NewConsole("INFO"))
			if err != nil {
				return err
			}
			scope := "globally"
			if res.GuildID != "" {
				scope = "on guild " + res.GuildID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully registered %d application commands %s.\n", res.Count, scope)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
