/*
Authpasswd - per-user password and password-policy authority.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Command authpasswdctl is a thin wire-protocol client: it dials the
// Reset, Policy or Check unix socket directly and prints the returned
// status.
// It carries no password-policy logic of its own and is not part of the
// Password Store / Policy Store / Request Processor core.
package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/urfave/cli/v2"

	clicore "github.com/authpasswd/authpasswd/internal/cli"
	"github.com/authpasswd/authpasswd/internal/cli/clitools"
	"github.com/authpasswd/authpasswd/internal/policyfile"
	"github.com/authpasswd/authpasswd/internal/wire"
)

func main() {
	clicore.AddSubcommand(&cli.Command{
		Name:  "reset-password",
		Usage: "administratively set a user's Normal or Recovery password",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "socket", Value: "/run/authpasswd/reset.sock"},
			&cli.BoolFlag{Name: "recovery"},
		},
		ArgsUsage: "<uid>",
		Action:    resetPassword,
	})
	clicore.AddSubcommand(&cli.Command{
		Name:  "disable-policy",
		Usage: "disable the password-quality policy for a user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "socket", Value: "/run/authpasswd/policy.sock"},
		},
		ArgsUsage: "<uid>",
		Action:    disablePolicy,
	})
	clicore.AddSubcommand(&cli.Command{
		Name:  "set-policy",
		Usage: "set the minimum password length for a user's policy",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "socket", Value: "/run/authpasswd/policy.sock"},
			&cli.UintFlag{Name: "min-length", Usage: "minimum password length, 0 to disable the length check"},
		},
		ArgsUsage: "<uid>",
		Action:    setPolicy,
	})
	clicore.AddSubcommand(&cli.Command{
		Name:  "check-state",
		Usage: "query whether the caller's own Normal password is active and when it expires",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "socket", Value: "/run/authpasswd/check.sock"},
		},
		Action: checkState,
	})
	clicore.Run()
}

func dial(socket string) (net.Conn, error) {
	return net.Dial("unix", socket)
}

func roundTrip(conn net.Conn, w *wire.Writer) (*wire.Reader, error) {
	if err := w.WriteTo(conn); err != nil {
		return nil, err
	}
	return wire.ReadFrame(conn)
}

func resetPassword(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: reset-password [--recovery] <uid>")
	}
	uid, err := strconv.ParseUint(c.Args().Get(0), 10, 32)
	if err != nil {
		return err
	}

	t := wire.Normal
	if c.Bool("recovery") {
		t = wire.Recovery
	}
	if !clitools.Confirmation(fmt.Sprintf("Reset the %s password for uid %d?", t, uid), false) {
		return nil
	}
	newPass, err := clitools.ReadPassword("New password")
	if err != nil {
		return err
	}

	conn, err := dial(c.String("socket"))
	if err != nil {
		return err
	}
	defer conn.Close()

	w := wire.NewWriter()
	w.Int32(int32(wire.RstPasswd))
	w.Uint32(uint32(uid))
	w.Int32(int32(t))
	w.String(newPass)

	r, err := roundTrip(conn, w)
	if err != nil {
		return err
	}
	status := wire.Status(r.Int32())
	fmt.Println(status)
	return nil
}

func disablePolicy(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: disable-policy <uid>")
	}
	uid, err := strconv.ParseUint(c.Args().Get(0), 10, 32)
	if err != nil {
		return err
	}
	conn, err := dial(c.String("socket"))
	if err != nil {
		return err
	}
	defer conn.Close()

	w := wire.NewWriter()
	w.Int32(int32(wire.DisPasswdPolicy))
	w.Uint32(uint32(uid))

	r, err := roundTrip(conn, w)
	if err != nil {
		return err
	}
	fmt.Println(wire.Status(r.Int32()))
	return nil
}

func setPolicy(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: set-policy --min-length=N <uid>")
	}
	uid, err := strconv.ParseUint(c.Args().Get(0), 10, 32)
	if err != nil {
		return err
	}
	conn, err := dial(c.String("socket"))
	if err != nil {
		return err
	}
	defer conn.Close()

	w := wire.NewWriter()
	w.Int32(int32(wire.SetPasswdPolicy))
	w.Uint32(uint32(uid))
	w.Uint32(uint32(policyfile.FieldMinLength))
	w.Uint32(uint32(c.Uint("min-length")))

	r, err := roundTrip(conn, w)
	if err != nil {
		return err
	}
	fmt.Println(wire.Status(r.Int32()))
	return nil
}

func checkState(c *cli.Context) error {
	conn, err := dial(c.String("socket"))
	if err != nil {
		return err
	}
	defer conn.Close()

	w := wire.NewWriter()
	w.Int32(int32(wire.ChkPasswdState))
	w.Int32(int32(wire.Normal))

	r, err := roundTrip(conn, w)
	if err != nil {
		return err
	}
	status := wire.Status(r.Int32())
	fmt.Println(status)
	if status == wire.Success || status == wire.Mismatch || status == wire.MaxAttemptsExceeded || status == wire.Expired {
		attempt := r.Uint32()
		maxAttempt := r.Uint32()
		secondsLeft := r.Uint32()
		fmt.Printf("attempt=%d max_attempt=%d seconds_left=%d\n", attempt, maxAttempt, secondsLeft)
	}
	return nil
}
