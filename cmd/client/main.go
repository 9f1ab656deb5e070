// Package main is the NikahPrep command-line client.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	version   string
	buildDate string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "nikahprep",
		Short:         "NikahPrep client: budget, mahr, goals, checklist and notes from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (built %s)", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A")),
		RunE:          func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}

	root.PersistentFlags().StringVar(&a.baseURL, "url", "", "server base URL (default: saved session URL or http://localhost:8080)")
	root.PersistentFlags().StringVar(&a.sessionPath, "session", defaultSessionPath(), "session file")
	root.PersistentFlags().StringVar(&a.caFile, "ca", "", "CA certificate trusted for HTTPS")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "log requests and stream errors")

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.dashboardCmd(),
		a.budgetCmd(),
		a.mahrCmd(),
		a.goalsCmd(),
		a.checklistCmd(),
		a.notesCmd(),
		a.exportCmd(),
		a.themeCmd(),
		a.watchCmd(),
	)
	return root
}
