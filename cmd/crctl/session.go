package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bionicotaku/codereview-sessionx"
)

func (c *cli) loginCmd() *cobra.Command {
	var creds sessionx.Credentials
	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Sign in and store the session",
		Annotations: map[string]string{routeAnnotation: sessionx.LoginPath},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := c.ctx(cmd)
			if c.nav.Location.Path != sessionx.LoginPath {
				snap := c.app.Manager.Peek()
				c.notifier.Notify(ctx, sessionx.SeverityInfo,
					fmt.Sprintf("Already logged in as %s; run crctl logout to switch accounts", displayName(snap.Profile)))
				return nil
			}
			if creds.Username == "" {
				return errors.New("--username is required")
			}
			if creds.Password == "" && !c.app.Config.Dev {
				pw, err := c.prompt("Password: ")
				if err != nil {
					return err
				}
				creds.Password = pw
			}
			if creds.Password == "" && !c.app.Config.Dev {
				return errors.New("password is required")
			}

			res, err := c.app.Manager.Login(ctx, creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", displayName(res.Profile))

			// Land on the home page the way the web client does after login.
			return c.navigate(ctx, "/")
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "account name")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Manager.Logout(cmd.Context())
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var reg sessionx.Registration
	cmd := &cobra.Command{
		Use:         "register",
		Short:       "Create an account",
		Annotations: map[string]string{routeAnnotation: sessionx.RegisterPath},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.Users == nil {
				return errors.New("register needs a backend; it is not available with --dev")
			}
			ctx := c.ctx(cmd)
			if reg.Password == "" {
				pw, err := c.prompt("Password: ")
				if err != nil {
					return err
				}
				reg.Password = pw
			}
			if err := c.app.Users.Validate(reg); err != nil {
				return err
			}
			msg, err := c.app.Users.Register(ctx, reg)
			if err != nil {
				return err
			}
			if msg == "" {
				msg = "Registration successful"
			}
			c.notifier.Notify(ctx, sessionx.SeveritySuccess, msg)
			return nil
		},
	}
	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "account name, 4-16 letters, digits or underscores")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "password, 6-20 characters (prompted when omitted)")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email address")
	cmd.Flags().StringVar(&reg.Nickname, "nickname", "", "display name")
	return cmd
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "whoami",
		Short:       "Fetch and show the signed-in profile",
		Annotations: map[string]string{routeAnnotation: sessionx.DashboardPath + "/profile"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := c.app.Manager.RefreshProfile(c.ctx(cmd))
			if err != nil {
				return err
			}
			return renderFields(cmd.OutOrStdout(), profile)
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored session without contacting the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := c.app.Manager.Snapshot(cmd.Context())
			rows := [][]string{
				{"Backend", c.app.Config.BaseURL},
				{"Store", c.app.Config.Store},
				{"Signed in", fmt.Sprintf("%t", snap.Authenticated)},
			}
			if snap.Authenticated {
				rows = append(rows, []string{"User", displayName(snap.Profile)})
				rows = append(rows, tokenRows(snap.Token, c.app.Manager.Validator())...)
			}
			return renderTable(cmd.OutOrStdout(), []string{"Key", "Value"}, rows)
		},
	}
}

func tokenRows(token string, v sessionx.TokenValidator) [][]string {
	var rows [][]string
	if claims, err := sessionx.InspectToken(token); err == nil {
		if claims.Subject != "" {
			rows = append(rows, []string{"Subject", claims.Subject})
		}
		if claims.Issuer != "" {
			rows = append(rows, []string{"Issuer", claims.Issuer})
		}
		if !claims.IssuedAt.IsZero() {
			rows = append(rows, []string{"Issued", claims.IssuedAt.Local().Format(time.RFC3339)})
		}
	}
	exp, declared, ok := v.ExpiresAt(token)
	switch {
	case !ok:
		rows = append(rows, []string{"Expires", "unreadable"})
	case !declared:
		rows = append(rows, []string{"Expires", "never"})
	default:
		remaining := time.Until(exp).Round(time.Second)
		rows = append(rows, []string{"Expires", fmt.Sprintf("%s (in %s)", exp.Local().Format(time.RFC3339), remaining)})
	}
	return rows
}

func displayName(p sessionx.Profile) string {
	if name := p.String(); name != "" {
		return name
	}
	return "unknown user"
}

func (c *cli) prompt(label string) (string, error) {
	fmt.Fprint(c.errOut, label)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
