// Package clicore holds the single urfave/cli.App instance shared by the
// authpasswdd and authpasswdctl entrypoints, and the plumbing that also
// registers global flags and the 'run' subcommand's flags (such as
// -config) with the stdlib flag.CommandLine set.
package clicore

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/authpasswd/authpasswd/framework/log"
	"github.com/urfave/cli/v2"
)

var app *cli.App

func init() {
	app = cli.NewApp()
	app.Usage = "per-user password and password-policy authority"
	app.Description = `authpasswd holds one password and one password policy per numeric user ID
and answers check/set/reset/policy requests over local Unix sockets.

This executable can be used to start the daemon ('run') and, in the
authpasswdctl build, to drive it from the command line.
`
	app.ExitErrHandler = func(c *cli.Context, err error) {
		cli.HandleExitCoder(err)
		if err != nil {
			log.Println(err)
			cli.OsExiter(1)
		}
	}
	app.EnableBashCompletion = true
	app.Commands = []*cli.Command{
		{
			Name:   "generate-man",
			Hidden: true,
			Action: func(c *cli.Context) error {
				man, err := app.ToMan()
				if err != nil {
					return err
				}
				fmt.Println(man)
				return nil
			},
		},
		{
			Name:   "generate-fish-completion",
			Hidden: true,
			Action: func(c *cli.Context) error {
				cp, err := app.ToFishCompletion()
				if err != nil {
					return err
				}
				fmt.Println(cp)
				return nil
			},
		},
	}
}

func AddGlobalFlag(f cli.Flag) {
	app.Flags = append(app.Flags, f)
	if err := f.Apply(flag.CommandLine); err != nil {
		log.Println("GlobalFlag", f, "could not be mapped to stdlib flag:", err)
	}
}

func AddSubcommand(cmd *cli.Command) {
	app.Commands = append(app.Commands, cmd)

	if cmd.Name == "run" {
		// Allow the daemon to be started as the bare executable with no
		// subcommand, matching a plain "authpasswdd" invocation.
		// Needs to be done here so we will register all known flags with
		// stdlib before Run is called.
		app.Action = cmd.Action
		app.Flags = append(app.Flags, cmd.Flags...)
		for _, f := range cmd.Flags {
			if err := f.Apply(flag.CommandLine); err != nil {
				log.Println("GlobalFlag", f, "could not be mapped to stdlib flag:", err)
			}
		}
	}
}

func Run() {
	// authpasswdctl has no implicit default command: bare invocation prints help.
	if strings.Contains(os.Args[0], "authpasswdctl") && len(os.Args) == 1 {
		if err := app.Run([]string{os.Args[0], "help"}); err != nil {
			log.DefaultLogger.Error("app.Run failed", err)
		}
		return
	}

	if err := app.Run(os.Args); err != nil {
		log.DefaultLogger.Error("app.Run failed", err)
	}
}
