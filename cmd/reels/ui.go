package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"jackpotreels/internal/game"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
	jackpot     = color.New(color.FgHiMagenta, color.Bold, color.BlinkSlow)
)

var iconNames = [game.IconCount]string{"CHERRY", "LEMON", "BELL", "STAR", "GEM", "SEVEN"}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptConfirm(label string) (bool, error) {
	for {
		fmt.Printf("%s [y/N]: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(text)) {
		case "y", "yes":
			return true, nil
		case "", "n", "no":
			return false, nil
		}
		printWarn("Answer y or n.")
	}
}

func renderView(v game.View) {
	s := v.State
	accent.Println("\n== JACKPOT REELS ==")
	fmt.Printf("Session:     %s\n", v.SessionID)
	fmt.Printf("Balance:     %s\n", formatCurrency(s.Balance))
	fmt.Printf("Jackpot:     %s\n", formatCurrency(s.JackpotPool))
	fmt.Printf("Spins:       %d\n", s.SpinsRemaining)
	fmt.Printf("Multiplier:  %s\n", s.Multiplier)
	if s.TotalDebt.IsPositive() {
		fmt.Printf("Debt:        %s\n", danger.Sprint(formatCurrency(s.TotalDebt)))
		fmt.Printf("Repayment:   %s per win\n", formatCurrency(s.RepaymentPerSpin))
	}
	if v.CreditAvailable {
		printInfo("Credit available: run `reels credit` to top up.")
	}
	if v.Phase == game.PhaseSpinning {
		printWarn("A spin is pending: run `reels resolve` to settle it.")
	}
	if v.CanSpin {
		success.Println(v.SpinLabel)
	} else {
		neutral.Println(v.SpinLabel)
	}
	fmt.Println()
}

func renderTiers(tiers []game.Tier) {
	accent.Println("\n== SPIN PACKS ==")
	fmt.Printf("%-10s %8s\n", "PRICE", "SPINS")
	for _, t := range tiers {
		fmt.Printf("%-10s %8d\n", formatCurrency(t.Price), t.Spins)
	}
	fmt.Println()
}

func renderPurchase(res game.PurchaseResult) {
	o := res.Outcome
	switch {
	case o.Declined:
		printWarn(o.Message)
	case o.Credit.IsPositive():
		printWarn(o.Message)
	default:
		printSuccess(o.Message)
	}
	if o.Fallback && !o.Declined {
		printInfo("Balance below the smallest pack, bought it on credit.")
	}
	renderView(res.View)
}

func renderCredit(res game.CreditResult) {
	o := res.Outcome
	if !o.Applied {
		printWarn("Credit is only offered when you are broke and debt free.")
		return
	}
	printSuccess(o.Message)
	if o.Overdrawn {
		printWarn("The jackpot pool went negative.")
	}
	renderView(res.View)
}

func renderReels(reels game.SpinResult) string {
	parts := make([]string, 0, len(reels))
	for _, r := range reels {
		parts = append(parts, fmt.Sprintf("[%c:%s]", 'A'+rune(r.Strip), iconName(r.Icon)))
	}
	return strings.Join(parts, " ")
}

func renderResolution(res game.SpinResolution) {
	o := res.Outcome
	fmt.Println(renderReels(o.Reels))
	switch {
	case o.Match == game.MatchJackpot:
		jackpot.Println(o.Message)
	case o.GrossWin.IsPositive():
		printSuccess(o.Message)
	default:
		printError(o.Message)
	}
	if o.Celebrate {
		jackpot.Printf("*** %s WIN ***\n", strings.ToUpper(string(o.Tier)))
	}
	renderView(res.View)
}

func iconName(i int) string {
	if i < 0 || i >= len(iconNames) {
		return "?"
	}
	return iconNames[i]
}

func formatCurrency(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	d = d.Truncate(2)
	whole := d.Truncate(0)
	out := sign + comma(whole.IntPart())
	if frac := d.Sub(whole); !frac.IsZero() {
		out += strings.TrimPrefix(frac.StringFixed(2), "0")
	}
	return out
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}
