package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"jackpotreels/internal/config"
	"jackpotreels/internal/game"
	"jackpotreels/internal/store"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const maxLogLines = 6

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	reelStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Width(10).Align(lipgloss.Center)
	modalStyle   = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("214")).Padding(1, 2)
	winStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	lossStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	jackpotStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("220")).Padding(0, 2)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func newPlayCmd(cfg config.CLIConfig) *cobra.Command {
	var (
		seed         int64
		forceJackpot bool
		delay        = cfg.SpinDelay
		logPath      string
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play locally in the terminal without an API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := config.LoadRules(cfg.RulesFile)
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			if logPath != "" {
				f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
			}

			var src game.RandomSource = game.NewRandomSource(seed)
			if forceJackpot {
				src = game.NewFixedSource(0)
			}
			sessions := store.NewMemory()
			defer sessions.Close()
			svc, err := game.NewService(sessions, game.Options{Rules: rules, Random: src, Logger: logger})
			if err != nil {
				return err
			}
			view, err := svc.CreateSession(cmd.Context())
			if err != nil {
				return err
			}

			p := tea.NewProgram(newPlayModel(cmd.Context(), svc, view, delay), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 0, "seed for the reels (0 picks one from the clock)")
	cmd.Flags().BoolVar(&forceJackpot, "force-jackpot", false, "stop every reel on the same symbol")
	cmd.Flags().DurationVar(&delay, "delay", delay, "time the reels spin before they stop")
	cmd.Flags().StringVar(&logPath, "log", "", "write debug logs to this file")
	return cmd
}

type (
	purchaseMsg struct {
		res   game.PurchaseResult
		retry func(accept bool) tea.Cmd
		err   error
	}
	multiplierMsg struct {
		res game.MultiplierResult
		err error
	}
	creditMsg struct {
		res game.CreditResult
		err error
	}
	spinStartedMsg struct {
		res game.SpinStart
		err error
	}
	spinStopMsg     struct{}
	spinResolvedMsg struct {
		res game.SpinResolution
		err error
	}
)

type playModel struct {
	ctx     context.Context
	svc     *game.Service
	rules   game.Rules
	delay   time.Duration
	view    game.View
	reels   *game.SpinResult
	last    game.SpinOutcome
	status  string
	log     []string
	spinner spinner.Model
	busy    bool
	offer   *game.CreditOffer
	retry   func(accept bool) tea.Cmd
}

func newPlayModel(ctx context.Context, svc *game.Service, view game.View, delay time.Duration) playModel {
	return playModel{
		ctx:     ctx,
		svc:     svc,
		rules:   svc.Rules(),
		delay:   delay,
		view:    view,
		status:  "Buy spins to start.",
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func (m playModel) Init() tea.Cmd {
	return nil
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case purchaseMsg:
		m.busy = false
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		o := msg.res.Outcome
		if o.Declined && o.Offer != nil && msg.retry != nil {
			offer := *o.Offer
			m.offer = &offer
			m.retry = msg.retry
			return m, nil
		}
		m.apply(msg.res.View, msg.res.Events)
		m.status = o.Message
	case multiplierMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.apply(msg.res.View, msg.res.Events)
		m.status = fmt.Sprintf("Multiplier set to %s!", msg.res.View.State.Multiplier)
	case creditMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.apply(msg.res.View, msg.res.Events)
		if msg.res.Outcome.Applied {
			m.status = msg.res.Outcome.Message
		} else {
			m.status = "Credit is only offered when you are broke and debt free."
		}
	case spinStartedMsg:
		if msg.err != nil {
			m.busy = false
			m.status = msg.err.Error()
			return m, nil
		}
		m.apply(msg.res.View, msg.res.Events)
		m.reels = nil
		m.status = "Spinning..."
		stop := tea.Tick(m.delay, func(time.Time) tea.Msg { return spinStopMsg{} })
		return m, tea.Batch(m.spinner.Tick, stop)
	case spinStopMsg:
		return m, m.resolveSpin()
	case spinResolvedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.apply(msg.res.View, msg.res.Events)
		reels := msg.res.Outcome.Reels
		m.reels = &reels
		m.last = msg.res.Outcome
		m.status = msg.res.Outcome.Message
	}
	return m, nil
}

func (m playModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "ctrl+c" || key == "q" {
		return m, tea.Quit
	}
	if m.offer != nil {
		retry := m.retry
		switch key {
		case "y", "enter":
			m.offer, m.retry = nil, nil
			m.busy = true
			return m, retry(true)
		case "n", "esc":
			m.offer, m.retry = nil, nil
			m.status = "Purchase cancelled."
		}
		return m, nil
	}
	if m.busy {
		return m, nil
	}

	id := m.view.SessionID
	switch key {
	case "1", "2", "3":
		i := int(key[0] - '1')
		if i >= len(m.rules.Tiers) {
			return m, nil
		}
		price := m.rules.Tiers[i].Price
		m.busy = true
		return m, m.purchase(func(accept bool) (game.PurchaseResult, error) {
			return m.svc.PurchaseTier(m.ctx, id, price, game.AcceptCredit(accept))
		})
	case "b":
		m.busy = true
		return m, m.purchase(func(accept bool) (game.PurchaseResult, error) {
			return m.svc.BuyMax(m.ctx, id, game.AcceptCredit(accept))
		})
	case "x":
		next := nextMultiplier(m.view.State.Multiplier)
		return m, func() tea.Msg {
			res, err := m.svc.SetMultiplier(m.ctx, id, next)
			return multiplierMsg{res: res, err: err}
		}
	case "c":
		return m, func() tea.Msg {
			res, err := m.svc.TakeCredit(m.ctx, id)
			return creditMsg{res: res, err: err}
		}
	case " ", "enter", "s":
		if !m.view.CanSpin {
			m.status = fmt.Sprintf("Not enough spins for %s.", m.view.State.Multiplier)
			return m, nil
		}
		m.busy = true
		return m, func() tea.Msg {
			res, err := m.svc.BeginSpin(m.ctx, id)
			return spinStartedMsg{res: res, err: err}
		}
	}
	return m, nil
}

// purchase runs do without credit and hands back a retry for the credit modal.
func (m playModel) purchase(do func(accept bool) (game.PurchaseResult, error)) tea.Cmd {
	var run func(accept bool) tea.Cmd
	run = func(accept bool) tea.Cmd {
		return func() tea.Msg {
			res, err := do(accept)
			msg := purchaseMsg{res: res, err: err}
			if !accept {
				msg.retry = run
			}
			return msg
		}
	}
	return run(false)
}

func (m playModel) resolveSpin() tea.Cmd {
	id := m.view.SessionID
	return func() tea.Msg {
		res, err := m.svc.ResolveSpin(m.ctx, id)
		return spinResolvedMsg{res: res, err: err}
	}
}

func (m *playModel) apply(v game.View, events []game.Event) {
	m.view = v
	for _, e := range events {
		line := string(e.Kind)
		if e.Message != "" {
			line += ": " + e.Message
		} else if !e.Amount.IsZero() {
			line += " " + formatCurrency(e.Amount)
		}
		m.log = append(m.log, line)
	}
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m playModel) View() string {
	s := m.view.State
	var b strings.Builder

	b.WriteString(titleStyle.Render("JACKPOT REELS"))
	b.WriteString("\n")

	stats := fmt.Sprintf("Balance    %s\nJackpot    %s\nSpins      %d\nMultiplier %s",
		formatCurrency(s.Balance), formatCurrency(s.JackpotPool), s.SpinsRemaining, s.Multiplier)
	if s.TotalDebt.IsPositive() {
		stats += lossStyle.Render(fmt.Sprintf("\nDebt       %s\nRepayment  %s", formatCurrency(s.TotalDebt), formatCurrency(s.RepaymentPerSpin)))
	}
	b.WriteString(panelStyle.Render(stats))
	b.WriteString("\n")

	cells := make([]string, 0, game.ReelCount)
	for i := 0; i < game.ReelCount; i++ {
		switch {
		case m.busy && m.reels == nil && m.view.Phase == game.PhaseSpinning:
			cells = append(cells, reelStyle.Render(m.spinner.View()))
		case m.reels != nil:
			r := m.reels[i]
			cells = append(cells, reelStyle.Render(fmt.Sprintf("%c\n%s", 'A'+rune(r.Strip), iconName(r.Icon))))
		default:
			cells = append(cells, reelStyle.Render("-"))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	b.WriteString("\n")

	switch {
	case m.reels != nil && m.last.Celebrate:
		b.WriteString(jackpotStyle.Render(strings.ToUpper(string(m.last.Tier)) + " WIN!"))
		b.WriteString("\n")
		b.WriteString(winStyle.Render(m.status))
	case m.reels != nil && m.last.GrossWin.IsPositive():
		b.WriteString(winStyle.Render(m.status))
	case m.reels != nil:
		b.WriteString(lossStyle.Render(m.status))
	default:
		b.WriteString(m.status)
	}
	b.WriteString("\n\n")

	if m.offer != nil {
		b.WriteString(modalStyle.Render(fmt.Sprintf(
			"Not enough balance.\nTake %s on credit to buy %d spins for %s?\n\n[y] accept  [n] cancel",
			formatCurrency(m.offer.Shortfall), m.offer.Spins, formatCurrency(m.offer.Amount),
		)))
		b.WriteString("\n")
		return b.String()
	}

	if len(m.log) > 0 {
		b.WriteString(mutedStyle.Render(strings.Join(m.log, "\n")))
		b.WriteString("\n\n")
	}

	tiers := make([]string, 0, len(m.rules.Tiers))
	for i, t := range m.rules.Tiers {
		if i >= 3 {
			break
		}
		tiers = append(tiers, fmt.Sprintf("[%d] %s/%d", i+1, formatCurrency(t.Price), t.Spins))
	}
	help := strings.Join(tiers, "  ") + "  [b] buy max  [x] multiplier  [c] credit\n"
	spinLabel := m.view.SpinLabel
	if m.view.CreditAvailable {
		help += "Credit available.  "
	}
	help += "[space] " + spinLabel + "  [q] quit"
	b.WriteString(mutedStyle.Render(help))
	b.WriteString("\n")
	return b.String()
}

func nextMultiplier(m game.Multiplier) game.Multiplier {
	switch m {
	case game.MultiplierX1:
		return game.MultiplierX3
	case game.MultiplierX3:
		return game.MultiplierX5
	default:
		return game.MultiplierX1
	}
}
