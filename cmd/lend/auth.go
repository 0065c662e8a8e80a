package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/lendclient/internal/errs"
	"github.com/and161185/lendclient/internal/model"
	"github.com/and161185/lendclient/internal/state"
	"github.com/and161185/lendclient/internal/token"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password, code string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with email and password. When --password is omitted the first line
of stdin is used. Accounts with a second factor need --code, or a follow-up
` + "`lend mfa --code`" + `.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return usagef("login: --email is required")
			}
			if password == "" {
				line, err := readLine(a)
				if err != nil {
					return usagef("login: no password given: %v", err)
				}
				password = line
			}
			ctx := cmd.Context()
			sess, err := a.client.Login(ctx, email, password)
			switch {
			case errors.Is(err, errs.ErrMFARequired):
				a.state.Dispatch(ctx, state.MFARequired{TempToken: sess.TempToken, Methods: sess.MFAMethods})
				if code == "" {
					fmt.Fprintf(a.out, "second factor required (%s), run `lend mfa --code <code>`\n",
						strings.Join(sess.MFAMethods, ", "))
					return nil
				}
				return verifyMFA(cmd, a, code)
			case err != nil:
				return fmt.Errorf("login: %w", err)
			}
			signedIn(cmd, a, sess)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (default: read from stdin)")
	cmd.Flags().StringVar(&code, "code", "", "second factor code")
	return cmd
}

func newMFACmd(a *app) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "mfa",
		Short: "Complete a login that needs a second factor",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if code == "" {
				return usagef("mfa: --code is required")
			}
			return verifyMFA(cmd, a, code)
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "second factor code")
	return cmd
}

func verifyMFA(cmd *cobra.Command, a *app, code string) error {
	auth := a.state.Snapshot().Auth
	if !auth.RequiresMFA || auth.TempToken == "" {
		return fmt.Errorf("mfa: no pending login, run `lend login` first")
	}
	sess, err := a.client.VerifyMFA(cmd.Context(), auth.TempToken, code)
	if err != nil {
		return fmt.Errorf("mfa: %w", err)
	}
	signedIn(cmd, a, sess)
	return nil
}

func signedIn(cmd *cobra.Command, a *app, sess model.Session) {
	st := a.state.Dispatch(cmd.Context(), state.LoginSucceeded{Session: sess})
	if exp, err := token.ExpiresAt(sess.AccessToken); err == nil {
		a.log.Info("signed in", zap.Time("token_expires", exp), zap.Int("token_len", len(sess.AccessToken)))
	}
	name := "unknown user"
	if st.Profile != nil {
		name = st.Profile.Name
	}
	fmt.Fprintf(a.out, "signed in as %s (%s)\n", name, strings.Join(sess.Roles.Strings(), ", "))
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.state.Snapshot().Auth.IsAuthenticated {
				// The local session is dropped even when the backend call fails.
				if err := a.client.Logout(ctx); err != nil {
					a.log.Warn("backend logout failed", zap.Error(err))
				}
			}
			a.state.Dispatch(ctx, state.LoggedOut{})
			fmt.Fprintln(a.out, "signed out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user as the backend sees it",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			u, err := a.client.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("whoami: %w", err)
			}
			st := a.state.Dispatch(cmd.Context(), state.AuthUserEdited{User: u})
			fmt.Fprintf(a.out, "id:          %s\nemail:       %s\nrole:        %s\n", u.ID, u.Email, u.Role)
			fmt.Fprintf(a.out, "permissions: %s\n", strings.Join(st.Auth.Permissions.Strings(), ", "))
			if exp, err := token.ExpiresAt(st.Auth.AccessToken); err == nil {
				fmt.Fprintf(a.out, "token until: %s\n", exp.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func readLine(a *app) (string, error) {
	sc := bufio.NewScanner(a.stdin)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", errors.New("stdin is empty")
	}
	return strings.TrimSpace(sc.Text()), nil
}
