package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/defistate/defistate-exchange-adapters-go/cmd/adapter/config"
	"github.com/defistate/defistate-exchange-adapters-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

type cli struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	build      builder

	configPath string
	app        *app
}

func newRootCmd(logger *slog.Logger, reg prometheus.Registerer, build builder) *cobra.Command {
	c := &cli{logger: logger, registerer: reg, build: build}

	root := &cobra.Command{
		Use:           "adapter",
		Short:         "Quote positions and compile vault instructions for exchange venues",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.logger.Info("Loading configuration", "path", c.configPath)
			cfg, err := config.LoadConfig(c.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			c.app, err = c.build(cmd.Context(), cfg, c.logger, c.registerer)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "config.yaml", "Path to the configuration file.")

	root.AddCommand(
		c.quoteCmd(),
		c.positionCmd(),
		c.codesCmd(),
		c.rolesCmd(),
		c.poolsCmd(),
	)
	return root
}

// --- Flags ---

// route is the (venue, inputToken, pool, outputToken) tuple every adapter call takes.
type route struct {
	venue, input, pool, output string
}

func (r *route) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.venue, "venue", "", "Venue name from the configuration.")
	cmd.Flags().StringVar(&r.input, "input", "", "Input token address or configured symbol.")
	cmd.Flags().StringVar(&r.pool, "pool", "", "Pool address.")
	cmd.Flags().StringVar(&r.output, "output", "", "Output token address or configured symbol (the LP token for liquidity deposits).")
	for _, name := range []string{"venue", "input", "pool", "output"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

type resolvedRoute struct {
	venue               venue
	input, pool, output common.Address
}

func (r *route) resolve(a *app) (resolvedRoute, error) {
	v, err := a.venue(r.venue)
	if err != nil {
		return resolvedRoute{}, err
	}
	input, err := a.tokens.Resolve(r.input)
	if err != nil {
		return resolvedRoute{}, fmt.Errorf("--input: %w", err)
	}
	pool, err := parseAddress("pool", r.pool)
	if err != nil {
		return resolvedRoute{}, err
	}
	output, err := a.tokens.Resolve(r.output)
	if err != nil {
		return resolvedRoute{}, fmt.Errorf("--output: %w", err)
	}
	return resolvedRoute{venue: v, input: input, pool: pool, output: output}, nil
}

func parseAddress(flag, value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("%w: --%s %q", engine.ErrInvalidAddress, flag, value)
	}
	return common.HexToAddress(value), nil
}

// parseAmount reads a base-10 amount in the token's smallest unit.
func parseAmount(value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: --amount %q", engine.ErrInvalidAmount, value)
	}
	return amount, nil
}

// --- Commands ---

func (c *cli) quoteCmd() *cobra.Command {
	var (
		r       route
		amount  string
		inverse bool
	)
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price an input amount in the output token, or with --inverse an output amount in the input token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rr, err := r.resolve(c.app)
			if err != nil {
				return err
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			var out *big.Int
			if inverse {
				out, err = rr.venue.adapter.GetSomeAmountInToken(cmd.Context(), rr.input, rr.pool, rr.output, value)
			} else {
				out, err = rr.venue.adapter.CalculateAmountInLPToken(cmd.Context(), rr.input, rr.pool, rr.output, value)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.String())
			return nil
		},
	}
	r.bind(cmd)
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in the token's smallest unit.")
	cmd.Flags().BoolVar(&inverse, "inverse", false, "Price an output-token amount in the input token.")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (c *cli) positionCmd() *cobra.Command {
	var (
		r      route
		holder string
	)
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Show a holder's output-token balance and its worth in the input token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rr, err := r.resolve(c.app)
			if err != nil {
				return err
			}
			who, err := parseAddress("holder", holder)
			if err != nil {
				return err
			}
			balance, err := rr.venue.adapter.GetLiquidityPoolTokenBalance(cmd.Context(), who, rr.input, rr.pool, rr.output)
			if err != nil {
				return err
			}
			worth, err := rr.venue.adapter.GetAllAmountInToken(cmd.Context(), who, rr.input, rr.pool, rr.output)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "balance\t%s\n", balance)
			fmt.Fprintf(w, "worth\t%s\n", worth)
			return w.Flush()
		},
	}
	r.bind(cmd)
	cmd.Flags().StringVar(&holder, "holder", "", "Holder (vault) address.")
	_ = cmd.MarkFlagRequired("holder")
	return cmd
}

const (
	opDepositAll   = "deposit-all"
	opDepositSome  = "deposit-some"
	opWithdrawAll  = "withdraw-all"
	opWithdrawSome = "withdraw-some"
)

func (c *cli) codesCmd() *cobra.Command {
	var (
		r      route
		op     string
		vault  string
		amount string
	)
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Compile the instruction sequence a vault executes, printed as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			rr, err := r.resolve(c.app)
			if err != nil {
				return err
			}
			v, err := parseAddress("vault", vault)
			if err != nil {
				return err
			}
			var value *big.Int
			switch op {
			case opDepositSome, opWithdrawSome:
				if value, err = parseAmount(amount); err != nil {
					return err
				}
			case opDepositAll, opWithdrawAll:
				if amount != "" {
					return fmt.Errorf("--amount is not used by %s", op)
				}
			default:
				return fmt.Errorf("unknown --op %q, want one of %s", op, strings.Join([]string{opDepositAll, opDepositSome, opWithdrawAll, opWithdrawSome}, ", "))
			}

			ctx, a := cmd.Context(), rr.venue.adapter
			var codes engine.Codes
			switch op {
			case opDepositAll:
				codes, err = a.GetDepositAllCodes(ctx, v, rr.input, rr.pool, rr.output)
			case opDepositSome:
				codes, err = a.GetDepositSomeCodes(ctx, v, rr.input, rr.pool, rr.output, value)
			case opWithdrawAll:
				codes, err = a.GetWithdrawAllCodes(ctx, v, rr.input, rr.pool, rr.output)
			case opWithdrawSome:
				codes, err = a.GetWithdrawSomeCodes(ctx, v, rr.input, rr.pool, rr.output, value)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(codes)
		},
	}
	r.bind(cmd)
	cmd.Flags().StringVar(&op, "op", "", "One of deposit-all, deposit-some, withdraw-all, withdraw-some.")
	cmd.Flags().StringVar(&vault, "vault", "", "Vault address that executes the instructions.")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount for the -some operations, in the token's smallest unit.")
	_ = cmd.MarkFlagRequired("op")
	_ = cmd.MarkFlagRequired("vault")
	return cmd
}

func (c *cli) rolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "Resolve the operator and riskOperator from the role registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			operator, err := c.app.readers.GetOperator(cmd.Context())
			if err != nil {
				return err
			}
			riskOperator, err := c.app.readers.GetRiskOperator(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\n", engine.RoleOperator, operator.Hex())
			fmt.Fprintf(w, "%s\t%s\n", engine.RoleRiskOperator, riskOperator.Hex())
			return w.Flush()
		},
	}
}

func (c *cli) poolsCmd() *cobra.Command {
	var venueName string
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List the pools configured for a venue",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := c.app.venue(venueName)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "POOL\tLP TOKEN\tCOINS\tGATEWAY\tDEPRECATED")
			for _, p := range v.pools.All() {
				lp := "-"
				if p.HasLPToken() {
					lp = c.app.tokens.Label(p.LPToken)
				}
				coins := make([]string, len(p.UnderlyingTokens))
				for i, token := range p.UnderlyingTokens {
					coins[i] = c.app.tokens.Label(token)
				}
				gateway := venueName == config.CurveVenue && c.app.curve.IsNativeAssetPool(p.Pool)
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\n", p.Pool.Hex(), lp, strings.Join(coins, "/"), gateway, p.Deprecated)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&venueName, "venue", "", "Venue name from the configuration.")
	_ = cmd.MarkFlagRequired("venue")
	return cmd
}
