package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/profiledir/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Register commands.RegisterCmd `cmd:"" help:"Create an account"`
		Login    commands.LoginCmd    `cmd:"" help:"Log in and store the session"`
		Logout   commands.LogoutCmd   `cmd:"" help:"Clear the stored session"`
		Whoami   commands.WhoamiCmd   `cmd:"" help:"Show the logged in user"`
		Users    commands.UsersCmd    `cmd:"" help:"Browse the user directory"`
		Profile  commands.ProfileCmd  `cmd:"" help:"Edit your profile"`
		Version  commands.VersionCmd  `cmd:"" help:"Show version"`
		Debug    bool                 `help:"Enable debug mode."`
		Config   string               `help:"Config file (default: ~/.profiledir/config.yaml)" type:"path"`
		Server   string               `help:"Account API URL" env:"PROFILEDIR_SERVER_URL"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("profiledir"),
		kong.Description("Profile directory client."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{
		Debug:   cli.Debug,
		Config:  cli.Config,
		Server:  cli.Server,
		Version: version,
	})
	cmd.FatalIfErrorf(err)
}
