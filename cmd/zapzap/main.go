package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Serve    ServeCmd         `cmd:"" help:"Run the ZapZap server"`
	Simulate SimulateCmd      `cmd:"" help:"Run an all-bot party to completion in-process"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("zapzap"),
		kong.Description("Multiplayer ZapZap card-game server"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
