package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/lendclient/internal/state"
	"github.com/and161185/lendclient/internal/token"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newSessionStatusCmd(a), newSessionValidateCmd(a))
	return cmd
}

func newSessionStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without calling the backend",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := a.state.Snapshot()
			auth := st.Auth
			fmt.Fprintf(a.out, "authenticated: %t\n", auth.IsAuthenticated)
			if auth.RequiresMFA {
				fmt.Fprintf(a.out, "mfa pending:   %s\n", strings.Join(auth.MFAMethods, ", "))
			}
			if st.Profile != nil {
				fmt.Fprintf(a.out, "user:          %s <%s>\n", st.Profile.Name, st.Profile.Email)
			}
			if auth.IsAuthenticated {
				fmt.Fprintf(a.out, "roles:         %s\n", strings.Join(auth.Roles.Strings(), ", "))
				fmt.Fprintf(a.out, "permissions:   %d\n", auth.Permissions.Len())
			}
			if auth.AccessToken == "" {
				return nil
			}
			exp, err := token.ExpiresAt(auth.AccessToken)
			if err != nil {
				fmt.Fprintln(a.out, "token:         unreadable")
				return nil
			}
			status := "valid"
			if token.IsExpired(auth.AccessToken, time.Now()) {
				status = "expired"
			}
			fmt.Fprintf(a.out, "token:         %s until %s\n", status, exp.Local().Format(time.RFC3339))
			return nil
		},
	}
}

func newSessionValidateCmd(a *app) *cobra.Command {
	var fix bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the stored session for inconsistencies",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			v := a.sessions.Validate(a.state.Snapshot().Auth)
			if v.OK() {
				fmt.Fprintln(a.out, "session ok")
				return nil
			}
			for _, issue := range v.Issues {
				fmt.Fprintln(a.out, "issue:", issue)
			}
			if !fix {
				return fmt.Errorf("session has %d issue(s), rerun with --fix", len(v.Issues))
			}
			switch {
			case v.NeedsClear:
				a.state.Dispatch(ctx, state.LoggedOut{})
				fmt.Fprintln(a.out, "session cleared")
			case v.Corrected != nil:
				a.state.Dispatch(ctx, state.CredentialsSet{Session: *v.Corrected})
				fmt.Fprintln(a.out, "session corrected")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "apply the proposed correction")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the auth and profile slices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Run a full consistency sweep and persist the result",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			after, fixes := a.state.Sweep(ctx)
			if len(fixes) == 0 {
				fmt.Fprintln(a.out, "state consistent")
				return nil
			}
			for _, f := range fixes {
				fmt.Fprintln(a.out, "fixed:", f)
			}
			if !slices.Contains(fixes, state.FixAuthWithoutUser) || after.Auth.AccessToken == "" {
				return nil
			}
			u, err := a.client.Me(ctx)
			if err != nil {
				return fmt.Errorf("refetch user: %w", err)
			}
			sess := a.state.Snapshot().Auth
			sess.User = u
			sess.IsAuthenticated = sess.AccessToken != ""
			a.state.Dispatch(ctx, state.CredentialsSet{Session: sess})
			fmt.Fprintln(a.out, "user refetched:", u.Email)
			return nil
		},
	})
	return cmd
}
