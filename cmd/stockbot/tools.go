package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/upb/stockbot/auth"
	"github.com/upb/stockbot/config"
	"github.com/upb/stockbot/internal/observability"
	"github.com/upb/stockbot/repositories/aliasfile"
	"github.com/upb/stockbot/services/pricing"
	"github.com/upb/stockbot/services/ticker"
	"go.uber.org/zap"
)

// toolLogger logs warnings only so command output stays readable
func toolLogger(cfg *config.Config) *zap.Logger {
	obs := cfg.Observability
	obs.LogLevel = "warn"
	obs.LogFile = ""
	logger, err := observability.NewLogger(obs)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func loadAliases(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) (*ticker.Resolver, error) {
	path, _ := cmd.Flags().GetString("aliases")
	if path == "" {
		path = cfg.Aliases.File
	}
	aliases, err := aliasfile.NewStore(path, logger).Load()
	if err != nil {
		return nil, err
	}
	return ticker.NewResolver(aliases), nil
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve TEXT",
		Short: "Print the ticker symbol of the first company named in TEXT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			resolver, err := loadAliases(cmd, cfg, toolLogger(cfg))
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			symbol, ok := resolver.Resolve(text)
			if !ok {
				return fmt.Errorf("no known company found in %q", text)
			}
			fmt.Fprintln(cmd.OutOrStdout(), symbol)
			return nil
		},
	}
	cmd.Flags().String("aliases", "", "alias file (default ALIASES_FILE)")
	return cmd
}

func newEstimateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "estimate TEXT",
		Short: "Price a prompt the way the assistant does before asking for confirmation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger := toolLogger(cfg)

			model, _ := cmd.Flags().GetString("model")
			if model == "" {
				model = cfg.Completion.Model
			}
			var tokenizer pricing.Tokenizer = pricing.NewTiktokenTokenizer(model, logger)
			if heuristic, _ := cmd.Flags().GetBool("heuristic"); heuristic {
				tokenizer = pricing.TokenizerFunc(pricing.HeuristicTokens)
			}

			est, err := pricing.NewEstimator(model, pricing.DefaultPrices(), tokenizer, logger).
				EstimateText(strings.Join(args, " "))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "model\t%s\n", est.Model)
			fmt.Fprintf(w, "input tokens\t%d\n", est.InputTokens)
			fmt.Fprintf(w, "output tokens\t%d\n", est.OutputTokens)
			fmt.Fprintf(w, "input cost\t$%s\n", est.InputCost.StringFixed(4))
			fmt.Fprintf(w, "output cost\t$%s\n", est.OutputCost.StringFixed(4))
			fmt.Fprintf(w, "total cost\t$%s\n", est.TotalCost.StringFixed(4))
			return w.Flush()
		},
	}
	cmd.Flags().String("model", "", "completion model (default COMPLETION_MODEL)")
	cmd.Flags().Bool("heuristic", false, "count tokens without loading the BPE encoding")
	return cmd
}

func newAliasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aliases",
		Short: "Inspect the alias table",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print the alias table in resolution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			resolver, err := loadAliases(cmd, cfg, toolLogger(cfg))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, a := range resolver.Aliases() {
				fmt.Fprintf(w, "%s\t%s\n", a.Name, a.Symbol)
			}
			return w.Flush()
		},
	}
	list.Flags().String("aliases", "", "alias file (default ALIASES_FILE)")
	cmd.AddCommand(list)
	return cmd
}

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token USER_ID",
		Short: "Issue an HTTP API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET must be set to issue tokens")
			}

			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl).Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "token lifetime (default JWT_TTL)")
	return cmd
}
