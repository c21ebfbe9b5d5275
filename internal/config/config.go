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

// Package config reads the daemon's directive file:
//
//	data_dir /var/lib/authpasswd
//	socket_dir /run/authpasswd
//	ignore_period 500ms
//	log debug stderr
//	hash sha256
//
// using the Caddyfile-style block parser in framework/cfgparser. Unlike
// that parser's original reflection-based Map companion (built to wire
// dozens of mail-delivery directive types into arbitrary struct fields),
// this daemon only ever has a handful of scalar knobs, so they are
// matched directive-by-directive instead of through a generic mapper.
package config

import (
	"fmt"
	"io"
	"time"

	cfgparser "github.com/authpasswd/authpasswd/framework/cfgparser"
	"github.com/authpasswd/authpasswd/internal/passwdfile/hash"
)

type Config struct {
	DataDir      string
	SocketDir    string
	IgnorePeriod time.Duration
	LogDebug     bool
	LogTargets   []string
	DefaultHash  hash.Algorithm
}

func Default() Config {
	return Config{
		DataDir:      "/var/lib/authpasswd",
		SocketDir:    "/run/authpasswd",
		IgnorePeriod: 500 * time.Millisecond,
		LogTargets:   []string{"stderr"},
		DefaultHash:  hash.SHA256,
	}
}

// Read parses the directive file from r and overlays it onto Default().
func Read(r io.Reader, location string) (Config, error) {
	nodes, err := cfgparser.Read(r, location)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", location, err)
	}
	return fromNodes(nodes)
}

func fromNodes(nodes []cfgparser.Node) (Config, error) {
	cfg := Default()
	for _, n := range nodes {
		switch n.Name {
		case "data_dir":
			if err := oneArg(n, &cfg.DataDir); err != nil {
				return cfg, err
			}
		case "socket_dir":
			if err := oneArg(n, &cfg.SocketDir); err != nil {
				return cfg, err
			}
		case "ignore_period":
			var raw string
			if err := oneArg(n, &raw); err != nil {
				return cfg, err
			}
			d, err := time.ParseDuration(raw)
			if err != nil {
				return cfg, fmt.Errorf("config: %s:%d: invalid ignore_period %q: %w", n.File, n.Line, raw, err)
			}
			cfg.IgnorePeriod = d
		case "hash":
			var raw string
			if err := oneArg(n, &raw); err != nil {
				return cfg, err
			}
			algo, err := hash.ParseAlgorithm(raw)
			if err != nil {
				return cfg, fmt.Errorf("config: %s:%d: %w", n.File, n.Line, err)
			}
			cfg.DefaultHash = algo
		case "log":
			cfg.LogTargets = nil
			for _, arg := range n.Args {
				if arg == "debug" {
					cfg.LogDebug = true
					continue
				}
				cfg.LogTargets = append(cfg.LogTargets, arg)
			}
			if len(cfg.LogTargets) == 0 {
				cfg.LogTargets = []string{"stderr"}
			}
		default:
			return cfg, fmt.Errorf("config: %s:%d: unknown directive %q", n.File, n.Line, n.Name)
		}
	}
	return cfg, nil
}

func oneArg(n cfgparser.Node, dst *string) error {
	if len(n.Args) != 1 {
		return fmt.Errorf("config: %s:%d: %s expects exactly one argument", n.File, n.Line, n.Name)
	}
	*dst = n.Args[0]
	return nil
}
