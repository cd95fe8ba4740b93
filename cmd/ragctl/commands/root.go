package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"docbot/internal/bootstrap"
	"docbot/internal/config"
	"docbot/internal/rag"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	ownerEmail string
	ownerName  string
	format     string
}

func Execute() error {
	return NewRootCmd().Execute()
}

func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "ragctl",
		Short: "Manage and query document chatbots",
		Long: `ragctl drives the docbot pipeline from the command line.

"chunk" works offline. The other commands read the server configuration
(configs/config.toml, .env and environment variables) and talk to the
model provider and the vector index directly.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.format != "text" && opts.format != "json" {
				return fmt.Errorf("--format must be text or json, got %q", opts.format)
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Config file (overrides CONFIG_FILE)")
	flags.StringVar(&opts.ownerEmail, "owner-email", os.Getenv("RAGCTL_OWNER_EMAIL"), "Chatbot owner email")
	flags.StringVar(&opts.ownerName, "owner-name", os.Getenv("RAGCTL_OWNER_NAME"), "Chatbot owner display name")
	flags.StringVar(&opts.format, "format", "text", "Output format: text or json")

	cmd.AddCommand(
		NewChunkCmd(opts),
		NewIngestCmd(opts),
		NewAskCmd(opts),
		NewChatbotsCmd(opts),
		NewChunksCmd(opts),
	)
	return cmd
}

// loadApp loads the configuration and builds the CLI application.
func (o *globalOptions) loadApp(ctx context.Context) (*bootstrap.App, error) {
	if o.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", o.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	app, err := bootstrap.NewCLI(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing: %w", err)
	}
	return app, nil
}

func (o *globalOptions) scope(chatbotName string) (rag.TenantScope, error) {
	scope, err := rag.NewTenantScope(o.ownerEmail, o.ownerName, chatbotName)
	if err != nil {
		return rag.TenantScope{}, fmt.Errorf("%w (set --owner-email and a chatbot name)", err)
	}
	return scope, nil
}

func (o *globalOptions) requireOwner() error {
	if o.ownerEmail == "" {
		return errors.New("--owner-email is required")
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
