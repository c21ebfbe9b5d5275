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

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	clicore "github.com/authpasswd/authpasswd/internal/cli"
	"github.com/authpasswd/authpasswd/internal/config"
	"github.com/authpasswd/authpasswd/internal/metrics"
	"github.com/authpasswd/authpasswd/internal/passwdfile"
	"github.com/authpasswd/authpasswd/internal/policyfile"
	"github.com/authpasswd/authpasswd/internal/process"
	"github.com/authpasswd/authpasswd/internal/transport"

	"github.com/authpasswd/authpasswd/framework/log"
)

func main() {
	clicore.AddSubcommand(&cli.Command{
		Name:  "run",
		Usage: "start the daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the directive file",
				Value: "/etc/authpasswd/authpasswd.conf",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "address to serve /metrics on, empty to disable",
				Value: "127.0.0.1:9114",
			},
		},
		Action: run,
	})
	clicore.Run()
}

func run(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			parsed, err := config.Read(f, path)
			if err != nil {
				return err
			}
			cfg = parsed
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	out, err := buildOutput(cfg.LogTargets)
	if err != nil {
		return err
	}
	logger := log.Logger{Name: "authpasswdd", Out: out, Debug: cfg.LogDebug}

	reg := prometheus.NewRegistry()
	rec := metrics.NewPrometheus(reg)

	passwords := passwdfile.NewStore(passwdfile.Options{
		DataDir:      cfg.DataDir,
		IgnorePeriod: cfg.IgnorePeriod,
		DefaultHash:  cfg.DefaultHash,
		Log:          logger,
	})
	policies := policyfile.NewStore(cfg.DataDir, logger)

	proc := &process.Processor{
		Passwords: passwords,
		Policies:  policies,
		Metrics:   rec,
		Log:       logger,
	}

	srv := &transport.Server{Processor: proc, Log: logger}
	if err := srv.Listen(cfg.SocketDir); err != nil {
		return err
	}
	defer srv.Close()

	if c.String("metrics-addr") != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(c.String("metrics-addr"), mux); err != nil {
				logger.Error("metrics listener failed", err)
			}
		}()
	}

	logger.Msg("authpasswdd started", "data_dir", cfg.DataDir, "socket_dir", cfg.SocketDir)
	select {}
}

// buildOutput turns the log directive's target list into a single
// log.Output, writing to every named target in turn.
func buildOutput(targets []string) (log.Output, error) {
	if len(targets) == 0 {
		return log.WriterOutput(os.Stderr, true), nil
	}

	outs := make([]log.Output, 0, len(targets))
	for _, t := range targets {
		switch t {
		case "stderr":
			outs = append(outs, log.WriterOutput(os.Stderr, true))
		case "stdout":
			outs = append(outs, log.WriterOutput(os.Stdout, true))
		case "syslog":
			so, err := log.SyslogOutput()
			if err != nil {
				return nil, fmt.Errorf("log: syslog: %w", err)
			}
			outs = append(outs, so)
		case "off":
			outs = append(outs, log.NopOutput{})
		default:
			f, err := os.OpenFile(t, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
			if err != nil {
				return nil, fmt.Errorf("log: open %s: %w", t, err)
			}
			outs = append(outs, log.WriteCloserOutput(f, true))
		}
	}
	if len(outs) == 1 {
		return outs[0], nil
	}
	return log.MultiOutput(outs...), nil
}
