package main

import (
	"os"

	"github.com/alecthomas/kong"

	"github.com/vitaminmoo/ledctl/internal/cli"
	"github.com/vitaminmoo/ledctl/internal/commands"
)

func main() {
	var app cli.CLI
	ctx := kong.Parse(&app,
		kong.Name("ledctl"),
		kong.Description("Control plane for LED_GUITAR Bluetooth lighting controllers."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	if err := ctx.Run(&app); err != nil {
		commands.RenderError(os.Stderr, commands.DefaultStyles(), err)
		os.Exit(1)
	}
}
