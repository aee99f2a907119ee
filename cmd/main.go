package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"tokenexecutor/cmd/executor"
	"tokenexecutor/cmd/keys"
	"tokenexecutor/src/logging"
	"tokenexecutor/src/model"
	"tokenexecutor/src/settings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "tokenexecutor"
	app.Usage = "Solana token position executor"
	app.Version = Version
	app.Before = func(_ *cli.Context) error {
		logging.LoadEnv()
		logging.SetupLogger()
		return nil
	}

	app.Commands = []cli.Command{
		executorCMD,
		reconcileCMD,
		closeCMD,
		blacklistCMD,
		configCMD,
		keygenCMD,
		sealKeyCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	executorCMD = cli.Command{
		Name:        "executor",
		Usage:       "run Executor",
		Action:      executorAction,
		Description: `Run the monitor, suggestion poller, reconciliation and HTTP API until stopped`,
	}
	reconcileCMD = cli.Command{
		Name:        "reconcile",
		Usage:       "run one reconciliation pass",
		Action:      reconcileAction,
		Description: `Import untracked wallet holdings and close positions whose tokens are gone`,
	}
	closeCMD = cli.Command{
		Name:      "close",
		Usage:     "sell an open position now",
		ArgsUsage: "<positionID>",
		Action:    closeAction,
	}
	blacklistCMD = cli.Command{
		Name:  "blacklist",
		Usage: "inspect or clear the token blacklist",
		Subcommands: []cli.Command{
			{
				Name:   "list",
				Usage:  "list blacklisted tokens",
				Action: blacklistListAction,
			},
			{
				Name:      "clear",
				Usage:     "remove a token from the blacklist",
				ArgsUsage: "<tokenAddress>",
				Action:    blacklistClearAction,
			},
		},
	}
	configCMD = cli.Command{
		Name:  "config",
		Usage: "inspect or change trade settings",
		Subcommands: []cli.Command{
			{
				Name:   "show",
				Usage:  "print the effective trade settings",
				Action: configShowAction,
			},
			{
				Name:      "set",
				Usage:     "store a trade_config value",
				ArgsUsage: "<key> <value>",
				Action:    configSetAction,
			},
		},
	}
	keygenCMD = cli.Command{
		Name:   "keygen",
		Usage:  "print a new CREDENTIALS_KEY",
		Action: func(_ *cli.Context) error { return keys.GenerateCredentialsKey(os.Stdout) },
	}
	sealKeyCMD = cli.Command{
		Name:        "seal-key",
		Usage:       "seal a base58 wallet key read from stdin",
		Action:      func(_ *cli.Context) error { return keys.SealWalletKey(os.Stdout, os.Stdin) },
		Description: `Prints WALLET_PRIVATE_KEY_SEALED using CREDENTIALS_KEY`,
	}
)

func executorAction(_ *cli.Context) error {
	logrus.Info("Starting executor CMD")

	executorStrategy := &executor.Executor{}
	if err := executorStrategy.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func reconcileAction(_ *cli.Context) error {
	ctx := context.Background()
	app, err := executor.NewTrading(ctx, logrus.WithField("cmd", "reconcile"))
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := app.Reconciler.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("imported=%d closed=%d skipped=%d\n", res.Imported, res.Closed, res.Skipped)
	return nil
}

func closeAction(c *cli.Context) error {
	id, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return cli.NewExitError("usage: close <positionID>", 2)
	}
	ctx := context.Background()
	app, err := executor.NewTrading(ctx, logrus.WithField("cmd", "close"))
	if err != nil {
		return err
	}
	defer app.Close()

	pos, err := app.Sell.ExecuteSell(ctx, uint(id), model.SellReasonManual)
	if err != nil {
		return err
	}
	fmt.Printf("position %d closed: sold %s at %s, pnl %s (%s%%)\n",
		pos.ID, pos.SellAmount.Decimal, pos.SellPrice.Decimal,
		pos.ProfitLossAmount.Decimal, pos.ProfitLossPercentage.Decimal.StringFixed(2))
	return nil
}

func blacklistListAction(_ *cli.Context) error {
	ctx := context.Background()
	app, err := executor.NewStore(ctx, logrus.WithField("cmd", "blacklist"))
	if err != nil {
		return err
	}
	entries, err := app.Guard.ListBlacklist(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		loss := "-"
		if e.LossPercentage.Valid {
			loss = e.LossPercentage.Decimal.StringFixed(2) + "%"
		}
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", e.TokenAddress, e.TokenSymbol, e.Reason, loss, e.BlacklistedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func blacklistClearAction(c *cli.Context) error {
	token := c.Args().First()
	if token == "" {
		return cli.NewExitError("usage: blacklist clear <tokenAddress>", 2)
	}
	ctx := context.Background()
	app, err := executor.NewStore(ctx, logrus.WithField("cmd", "blacklist"))
	if err != nil {
		return err
	}
	removed, err := app.Guard.ClearBlacklist(ctx, token)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Printf("%s was not blacklisted\n", token)
		return nil
	}
	fmt.Printf("%s removed from blacklist\n", token)
	return nil
}

func configShowAction(_ *cli.Context) error {
	ctx := context.Background()
	app, err := executor.NewStore(ctx, logrus.WithField("cmd", "config"))
	if err != nil {
		return err
	}
	printSettings(os.Stdout, app.Settings.Current())
	return nil
}

func configSetAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return cli.NewExitError("usage: config set <key> <value>", 2)
	}
	key, value := c.Args().Get(0), c.Args().Get(1)
	if !knownConfigKey(key) {
		return cli.NewExitError(fmt.Sprintf("unknown trade config key %q", key), 2)
	}
	ctx := context.Background()
	app, err := executor.NewStore(ctx, logrus.WithField("cmd", "config"))
	if err != nil {
		return err
	}

	// Validate the would-be settings before storing the row.
	raw, err := app.TradeConfig.All(ctx)
	if err != nil {
		return err
	}
	raw[key] = value
	if _, err := settings.Load(ctx, staticSource(raw)); err != nil {
		return err
	}
	if err := app.TradeConfig.Set(ctx, key, value); err != nil {
		return err
	}
	fmt.Printf("%s=%s stored, running executors pick it up on the next reload\n", key, value)
	return nil
}

func knownConfigKey(key string) bool {
	for _, row := range model.DefaultTradeConfig {
		if row.Key == key {
			return true
		}
	}
	return false
}

type staticSource map[string]string

func (s staticSource) All(context.Context) (map[string]string, error) { return s, nil }

func printSettings(w io.Writer, s *settings.TradeSettings) {
	fields := s.Fields()
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		_, _ = fmt.Fprintf(w, "%s=%v\n", k, fields[k])
	}
}
