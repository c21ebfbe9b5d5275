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

package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/authpasswd/authpasswd/internal/passwdfile/hash"
)

func TestReadDefaults(t *testing.T) {
	cfg, err := Read(strings.NewReader(""), "<test>")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	want := Default()
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("cfg = %+v, want defaults %+v", cfg, want)
	}
}

func TestReadOverridesScalars(t *testing.T) {
	src := `
data_dir /var/lib/authpasswd-test
socket_dir /run/authpasswd-test
ignore_period 2s
hash bcrypt
`
	cfg, err := Read(strings.NewReader(src), "<test>")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if cfg.DataDir != "/var/lib/authpasswd-test" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.SocketDir != "/run/authpasswd-test" {
		t.Errorf("SocketDir = %q", cfg.SocketDir)
	}
	if cfg.IgnorePeriod != 2*time.Second {
		t.Errorf("IgnorePeriod = %v, want 2s", cfg.IgnorePeriod)
	}
	if cfg.DefaultHash != hash.Bcrypt {
		t.Errorf("DefaultHash = %v, want bcrypt", cfg.DefaultHash)
	}
}

func TestReadLogDirectiveSplitsDebugFromTargets(t *testing.T) {
	cfg, err := Read(strings.NewReader(`log debug stderr syslog`), "<test>")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !cfg.LogDebug {
		t.Errorf("LogDebug = false, want true")
	}
	want := []string{"stderr", "syslog"}
	if len(cfg.LogTargets) != len(want) {
		t.Fatalf("LogTargets = %v, want %v", cfg.LogTargets, want)
	}
	for i, w := range want {
		if cfg.LogTargets[i] != w {
			t.Errorf("LogTargets[%d] = %q, want %q", i, cfg.LogTargets[i], w)
		}
	}
}

func TestReadLogDirectiveDebugOnlyKeepsStderr(t *testing.T) {
	cfg, err := Read(strings.NewReader(`log debug`), "<test>")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !cfg.LogDebug {
		t.Errorf("LogDebug = false, want true")
	}
	if len(cfg.LogTargets) != 1 || cfg.LogTargets[0] != "stderr" {
		t.Errorf("LogTargets = %v, want [stderr]", cfg.LogTargets)
	}
}

func TestReadUnknownDirective(t *testing.T) {
	_, err := Read(strings.NewReader(`bogus_directive 1`), "<test>")
	if err == nil {
		t.Fatalf("expected error for unknown directive")
	}
}

func TestReadBadDuration(t *testing.T) {
	_, err := Read(strings.NewReader(`ignore_period not-a-duration`), "<test>")
	if err == nil {
		t.Fatalf("expected error for invalid ignore_period")
	}
}

func TestReadBadHashName(t *testing.T) {
	_, err := Read(strings.NewReader(`hash md5`), "<test>")
	if err == nil {
		t.Fatalf("expected error for unsupported hash algorithm")
	}
}

func TestReadWrongArgCount(t *testing.T) {
	_, err := Read(strings.NewReader(`data_dir`), "<test>")
	if err == nil {
		t.Fatalf("expected error for data_dir with no argument")
	}

	_, err = Read(strings.NewReader(`data_dir /a /b`), "<test>")
	if err == nil {
		t.Fatalf("expected error for data_dir with two arguments")
	}
}
