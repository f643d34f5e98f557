package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/upiwallet/cmd/cli/internal/commands"
	"github.com/wolfeidau/upiwallet/internal/logger"
	"github.com/wolfeidau/upiwallet/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Login    commands.LoginCmd    `cmd:"" help:"Sign in and store the session"`
		Logout   commands.LogoutCmd   `cmd:"" help:"End the stored session"`
		Status   commands.StatusCmd   `cmd:"" help:"Show the current session"`
		Access   commands.AccessCmd   `cmd:"" help:"Show which routes the session may open"`
		Balance  commands.BalanceCmd  `cmd:"" help:"Show the wallet balance"`
		History  commands.HistoryCmd  `cmd:"" help:"List recent transactions"`
		UPIID    commands.UPIIDCmd    `cmd:"" name:"upi-id" help:"Show your UPI id"`
		Watch    commands.WatchCmd    `cmd:"" help:"Watch the balance live"`
		Transfer commands.TransferCmd `cmd:"" help:"Send money to a UPI id"`
		Token    commands.TokenCmd    `cmd:"" help:"Generate a JWT token for local testing" hidden:""`
		Debug    bool                 `help:"Enable debug mode."`
		Otel     bool                 `help:"Export metrics and traces over OTLP."`
		Config   string               `help:"Config file" type:"path" env:"WALLET_CONFIG"`
		Server   string               `help:"Wallet server URL, overrides the config file" env:"WALLET_SERVER"`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("walletctl"),
		kong.Description("UPI wallet command line client."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	shutdown := telemetry.ShutdownFunc(func(context.Context) error { return nil })
	if cli.Otel {
		var err error
		shutdown, err = telemetry.InitTelemetry(ctx, "walletctl", version)
		cmd.FatalIfErrorf(err)
	}

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Config: cli.Config, Server: cli.Server})
	if serr := shutdown(context.Background()); serr != nil {
		log.Warn().Err(serr).Msg("failed to flush telemetry")
	}
	cmd.FatalIfErrorf(err)
}
