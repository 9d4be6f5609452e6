package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	cl "jackpotreels/internal/cli"
	"jackpotreels/internal/config"
	"jackpotreels/internal/game"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	_ = config.LoadDotEnv("")
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "reels",
		Short:        "Jackpot Reels slot machine client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "reels API base URL")

	root.AddCommand(
		newNewCmd(&apiBase),
		newStatusCmd(&apiBase),
		newTiersCmd(&apiBase),
		newBuyCmd(&apiBase),
		newBuyMaxCmd(&apiBase),
		newCreditCmd(&apiBase),
		newMultiplierCmd(&apiBase),
		newSpinCmd(&apiBase, cfg.SpinDelay),
		newResolveCmd(&apiBase),
		newPlayCmd(cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(apiBase), "/"))
}

// sessionClient resolves the saved session. An explicit --api flag wins over
// the base URL the session was created against.
func sessionClient(cmd *cobra.Command, apiBase *string) (*cl.Client, string, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return nil, "", fmt.Errorf("no session, run `reels new` first: %w", err)
	}
	base := *apiBase
	if f := cmd.Flag("api"); (f == nil || !f.Changed) && sess.APIBase != "" {
		base = sess.APIBase
	}
	return newClient(base), sess.SessionID, nil
}

func newNewCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a fresh session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := newClient(*apiBase).CreateSession(ctx)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{SessionID: view.SessionID, APIBase: *apiBase}); err != nil {
				return err
			}
			printSuccess("New session started. Session saved.")
			renderView(view)
			return nil
		},
	}
}

func newStatusCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show balance, jackpot and spins",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := sessionClient(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			view, err := client.Session(ctx, id)
			if err != nil {
				return err
			}
			renderView(view)
			return nil
		},
	}
}

func newTiersCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tiers",
		Short: "List spin packs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			tiers, err := newClient(*apiBase).Tiers(ctx)
			if err != nil {
				return err
			}
			renderTiers(tiers)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	var spins int
	cmd := &cobra.Command{
		Use:   "buy AMOUNT",
		Short: "Buy a spin pack (100, 500 or 1000)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(strings.TrimSpace(args[0]))
			if err != nil || !amount.IsPositive() {
				return fmt.Errorf("amount must be a positive number, got %q", args[0])
			}
			client, id, err := sessionClient(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			res, err := purchaseWithPrompt(func(accept bool) (game.PurchaseResult, error) {
				return client.Purchase(ctx, id, amount, spins, accept)
			})
			if err != nil {
				return err
			}
			renderPurchase(res)
			return nil
		},
	}
	cmd.Flags().IntVar(&spins, "spins", 0, "spins to buy at a custom amount (0 looks the amount up in the packs)")
	return cmd
}

func newBuyMaxCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy-max",
		Short: "Spend as much of the balance as the packs allow",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := sessionClient(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			res, err := purchaseWithPrompt(func(accept bool) (game.PurchaseResult, error) {
				return client.BuyMax(ctx, id, accept)
			})
			if err != nil {
				return err
			}
			renderPurchase(res)
			return nil
		},
	}
}

// purchaseWithPrompt sends the purchase without credit first and asks before
// resending it with the offered credit.
func purchaseWithPrompt(send func(accept bool) (game.PurchaseResult, error)) (game.PurchaseResult, error) {
	res, err := send(false)
	if err != nil {
		return res, err
	}
	offer := res.Outcome.Offer
	if !res.Outcome.Declined || offer == nil {
		return res, nil
	}
	ok, err := promptConfirm(fmt.Sprintf(
		"Not enough balance. Take %s on credit to buy %d spins for %s?",
		formatCurrency(offer.Shortfall), offer.Spins, formatCurrency(offer.Amount),
	))
	if err != nil {
		return res, err
	}
	if !ok {
		return res, nil
	}
	return send(true)
}

func newCreditCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "credit",
		Short: "Top up from the house when broke",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := sessionClient(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := client.TakeCredit(ctx, id)
			if err != nil {
				return err
			}
			renderCredit(res)
			return nil
		},
	}
}

func newMultiplierCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "multiplier N",
		Short: "Set the bet multiplier (1, 3 or 5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(args[0])), "x"))
			if err != nil {
				return fmt.Errorf("multiplier must be 1, 3 or 5, got %q", args[0])
			}
			if _, err := game.ParseMultiplier(n); err != nil {
				return err
			}
			client, id, err := sessionClient(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := client.SetMultiplier(ctx, id, n)
			if err != nil {
				return err
			}
			for _, e := range res.Events {
				printSuccess(e.Message)
			}
			renderView(res.View)
			return nil
		},
	}
}

func newSpinCmd(apiBase *string, delay time.Duration) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spin",
		Short: "Spin the reels",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := sessionClient(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), delay+time.Minute)
			defer cancel()
			start, err := client.BeginSpin(ctx, id)
			if err != nil {
				var apiErr *cl.APIError
				if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
					printWarn(apiErr.Message)
					return nil
				}
				return err
			}
			accent.Printf("Spinning at %s... ", start.View.State.Multiplier)

			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				fmt.Println()
				printWarn("Interrupted. Run `reels resolve` to settle the spin.")
				return ctx.Err()
			case <-timer.C:
			}
			fmt.Println()

			res, err := client.ResolveSpin(ctx, id)
			if err != nil {
				return err
			}
			renderResolution(res)
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", delay, "time the reels spin before they stop")
	return cmd
}

func newResolveCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Settle a pending spin",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, id, err := sessionClient(cmd, apiBase)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := client.ResolveSpin(ctx, id)
			if err != nil {
				return err
			}
			renderResolution(res)
			return nil
		},
	}
}
