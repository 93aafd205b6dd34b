// Package cli is the terminal client: cobra commands that sign in, start a
// session and hand it to the REPL.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"

	"github.com/eaaaarl/iChat-Web/internal/client/api"
	"github.com/eaaaarl/iChat-Web/internal/client/live"
	"github.com/eaaaarl/iChat-Web/internal/config"
	"github.com/eaaaarl/iChat-Web/internal/conversation"
	"github.com/eaaaarl/iChat-Web/internal/session"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ServerURL string
	LogLevel  string
	Email     string
	Password  string

	cfg *config.Client
}

// NewRootCommand creates the root command of the chat client.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "ichat",
		Short:         "iChat - direct messages in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if opts.ServerURL != "" {
				cfg.ServerURL = opts.ServerURL
			}
			if opts.LogLevel != "" {
				cfg.LogLevel = opts.LogLevel
			}
			opts.cfg = cfg
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ServerURL, "server", "", "server URL (default $ICHAT_SERVER_URL)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (default $LOG_LEVEL)")

	cmd.AddCommand(NewChatCommand(opts))
	cmd.AddCommand(NewRegisterCommand(opts))
	cmd.AddCommand(NewRosterCommand(opts))

	return cmd
}

func addLoginFlags(cmd *cobra.Command, opts *RootOptions) {
	cmd.Flags().StringVarP(&opts.Email, "email", "e", "", "account email (required)")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", os.Getenv("ICHAT_PASSWORD"), "account password (default $ICHAT_PASSWORD)")
	cmd.MarkFlagRequired("email")
}

// NewChatCommand signs in and starts the interactive client.
func NewChatCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Sign in and chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			if _, err := client.Login(cmd.Context(), opts.Email, opts.Password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			return opts.chat(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addLoginFlags(cmd, opts)
	return cmd
}

// NewRegisterCommand creates an account, then chats as it.
func NewRegisterCommand(opts *RootOptions) *cobra.Command {
	var input api.RegisterInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			input.Email = opts.Email
			input.Password = opts.Password
			if input.DisplayName == "" {
				input.DisplayName = input.Username
			}
			client := opts.client()
			if _, err := client.Register(cmd.Context(), input); err != nil {
				return fmt.Errorf("register: %w", err)
			}
			return opts.chat(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	addLoginFlags(cmd, opts)
	cmd.Flags().StringVarP(&input.Username, "username", "u", "", "username (required)")
	cmd.Flags().StringVar(&input.DisplayName, "display-name", "", "display name (default username)")
	cmd.MarkFlagRequired("username")
	return cmd
}

// NewRosterCommand prints the roster once and exits.
func NewRosterCommand(opts *RootOptions) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Print the roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			if _, err := client.Login(cmd.Context(), opts.Email, opts.Password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			sess, err := opts.session(cmd.Context(), client)
			if err != nil {
				return err
			}
			defer sess.Teardown()

			if err := sess.Roster.Load(cmd.Context()); err != nil {
				return err
			}
			summaries := sess.Roster.Summaries()
			if filter != "" {
				summaries = sess.Roster.Filter(filter)
			}
			renderRoster(cmd.OutOrStdout(), summaries, time.Now())
			return nil
		},
	}
	addLoginFlags(cmd, opts)
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only peers whose name contains this")
	return cmd
}

func (o *RootOptions) client() *api.Client {
	return api.New(o.cfg.ServerURL, o.cfg.RequestTimeout)
}

func (o *RootOptions) session(ctx context.Context, client *api.Client) (*session.Session, error) {
	log := logs.GetLoggerFromString(o.cfg.LogLevel)
	channel := live.New(client.LiveURL, live.Options{
		ReconnectBackoff: o.cfg.ReconnectBackoff,
		MaxBackoff:       o.cfg.MaxBackoff,
		DialAttempts:     o.cfg.DialAttempts,
	}, log)

	return session.New(ctx, session.Deps{
		Identity: client,
		Messages: client,
		Profiles: client,
		Channel:  channel,
		Log:      log,
	}, session.Options{
		RosterConcurrency: o.cfg.RosterConcurrency,
		Conversation: conversation.Options{
			ReadRetries:      o.cfg.ReadRetries,
			ReadRetryBackoff: o.cfg.ReadRetryBackoff,
		},
	})
}

func (o *RootOptions) chat(ctx context.Context, client *api.Client, in io.Reader, out io.Writer) error {
	sess, err := o.session(ctx, client)
	if err != nil {
		return err
	}
	defer sess.Teardown()

	if err := sess.Roster.Load(ctx); err != nil {
		fmt.Fprintf(out, "roster unavailable: %v\n", err)
	}
	return NewREPL(sess, client.Logout, in, out).Run(ctx)
}
