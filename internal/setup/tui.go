package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/whalewatch/config"
)

const wizardTitle = "WHALEWATCH CONFIG WIZARD"

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers collected by the wizard, all as typed.
type answers struct {
	feedURL      string
	network      string
	token        string
	rpcURL       string
	chainID      string
	counterparty string
	dryRun       bool
	threshold    string
	slippage     string
	fee          string
	floor        string
	concurrency  string
	spacingMs    string
	retries      string
	retryDelayMs string
}

func defaultAnswers() answers {
	return answers{
		feedURL:      "wss://streaming.bitquery.io/graphql",
		network:      "eth",
		rpcURL:       "http://localhost:8545",
		chainID:      "0",
		threshold:    "50000",
		slippage:     "0.01",
		fee:          "0.000005",
		floor:        "4.4",
		concurrency:  "20",
		spacingMs:    "500",
		retries:      "5",
		retryDelayMs: "1000",
	}
}

func step(title string) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render(wizardTitle))
	fmt.Println(stepStyle.Render(title))
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := defaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(wizardTitle))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Secrets are read from " + config.EnvPrivateKey + " and " + config.EnvFeedToken + ", never from this file.\n"))

	fmt.Println(stepStyle.Render("STEP 1: TRADE FEED"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("GraphQL websocket URL").
				Value(&a.feedURL).
				Validate(notEmpty("feed url")),
			huh.NewInput().
				Title("Network").
				Description("Network argument of the trades subscription (e.g. eth, bsc)").
				Value(&a.network),
			huh.NewInput().
				Title("Token contract").
				Description("Only trades of this token are streamed").
				Value(&a.token).
				Validate(validateAddress),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 2: LEDGER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("RPC URL").
				Value(&a.rpcURL).
				Validate(notEmpty("rpc url")),
			huh.NewInput().
				Title("Chain ID").
				Description("0 asks the node").
				Value(&a.chainID).
				Validate(validateInt(0)),
			huh.NewConfirm().
				Title("Dry run?").
				Description("Log transfers without sending them").
				Value(&a.dryRun),
		),
	).Run()
	if err != nil {
		return err
	}

	if !a.dryRun {
		step("STEP 3: COUNTERPARTY")
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Counterparty address").
					Description("Receives every transfer leg").
					Value(&a.counterparty).
					Validate(validateAddress),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	step("STEP 4: RULES")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Large trade threshold (USD)").
				Value(&a.threshold).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Slippage tolerance").
				Description("Minimum sell/buy ratio minus one (e.g. 0.01)").
				Value(&a.slippage).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Fixed fee per transfer").
				Value(&a.fee).
				Validate(validateDecimal),
			huh.NewInput().
				Title("Balance floor").
				Description("Stop when the balance falls to this value").
				Value(&a.floor).
				Validate(validateDecimal),
		),
	).Run()
	if err != nil {
		return err
	}

	step("STEP 5: SUBMISSIONS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Max concurrent submissions").
				Value(&a.concurrency).
				Validate(validateInt(1)),
			huh.NewInput().
				Title("Min spacing between submissions (ms)").
				Value(&a.spacingMs).
				Validate(validateInt(0)),
			huh.NewInput().
				Title("Max retry attempts").
				Value(&a.retries).
				Validate(validateInt(1)),
			huh.NewInput().
				Title("Initial retry delay (ms)").
				Value(&a.retryDelayMs).
				Validate(validateInt(0)),
		),
	).Run()
	if err != nil {
		return err
	}

	step("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Feed: %s\nToken: %s\nRPC: %s\nCounterparty: %s\nDry run: %t\nThreshold: %s USD\n",
		a.feedURL, a.token, a.rpcURL, a.counterparty, a.dryRun, a.threshold,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	if err := writeConfig(path, a); err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting watcher...", path)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func writeConfig(path string, a answers) error {
	chainID, _ := strconv.ParseInt(a.chainID, 10, 64)
	concurrency, _ := strconv.Atoi(a.concurrency)
	spacing, _ := strconv.Atoi(a.spacingMs)
	retries, _ := strconv.Atoi(a.retries)
	delay, _ := strconv.Atoi(a.retryDelayMs)

	cfgTmp := config.ConfigTmp{
		FeedURL:                      a.feedURL,
		Network:                      a.network,
		Token:                        a.token,
		RPCURL:                       a.rpcURL,
		ChainID:                      chainID,
		Counterparty:                 a.counterparty,
		DryRun:                       a.dryRun,
		LargeTransactionThresholdUSD: a.threshold,
		SlippageTolerance:            a.slippage,
		FixedFeePerTransaction:       a.fee,
		BalanceFloorThreshold:        a.floor,
		MaxConcurrentSubmissions:     concurrency,
		MinSubmissionSpacingMs:       &spacing,
		MaxRetryAttempts:             retries,
		InitialRetryDelayMs:          &delay,
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}

func notEmpty(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", name)
		}
		return nil
	}
}

func validateAddress(s string) error {
	if !common.IsHexAddress(strings.TrimSpace(s)) {
		return fmt.Errorf("must be a 0x-prefixed hex address")
	}
	return nil
}

func validateDecimal(s string) error {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("must be a valid number")
	}
	if d.IsNegative() {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateInt(min int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("must be an integer")
		}
		if n < min {
			return fmt.Errorf("must be at least %d", min)
		}
		return nil
	}
}
