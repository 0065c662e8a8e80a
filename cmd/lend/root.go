package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "lend",
		Short: "Loan origination client",
		Long: `lend signs in to the loan origination backend, keeps the session on disk,
walks a loan application through its five steps and submits it with its
documents.`,
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a.showMetrics {
				_ = writeMetrics(a.out, a.reg)
			}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "config file (default $XDG_CONFIG_HOME/lendclient/config.yaml)")
	pf.StringVar(&a.apiURL, "api-url", "", "backend base URL")
	pf.StringVar(&a.store, "storage", "", "session storage: memory, file, sealed or postgres")
	pf.StringVar(&a.logLevel, "log-level", "", "log level")
	pf.BoolVar(&a.showMetrics, "metrics", false, "print client counters after the command")

	root.AddCommand(
		newLoginCmd(a),
		newMFACmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newSessionCmd(a),
		newSyncCmd(a),
		newApplyCmd(a),
		newDraftCmd(a),
		newNotifyCmd(a),
		newReportsCmd(a),
		newMetricsCmd(a),
	)
	return root
}

// exactArgs is cobra.ExactArgs with misuse reported as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usagef("%s: accepts %d arg(s), received %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}
