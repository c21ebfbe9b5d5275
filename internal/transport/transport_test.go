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

package transport

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/authpasswd/authpasswd/framework/log"
	"github.com/authpasswd/authpasswd/internal/metrics"
	"github.com/authpasswd/authpasswd/internal/passwdfile"
	"github.com/authpasswd/authpasswd/internal/policyfile"
	"github.com/authpasswd/authpasswd/internal/process"
	"github.com/authpasswd/authpasswd/internal/wire"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	sockDir := t.TempDir()

	p := &process.Processor{
		Passwords: passwdfile.NewStore(passwdfile.Options{DataDir: dataDir}),
		Policies:  policyfile.NewStore(dataDir, log.Logger{}),
		Metrics:   metrics.Noop{},
	}
	s := &Server{Processor: p}
	if err := s.Listen(sockDir); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(s.Close)
	return s, sockDir
}

func TestListenCreatesAllFourSockets(t *testing.T) {
	_, sockDir := newTestServer(t)

	for _, spec := range endpoints {
		path := filepath.Join(sockDir, spec.name)
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", spec.name, err)
		}
		if fi.Mode()&os.ModeSocket == 0 {
			t.Errorf("%s is not a socket", spec.name)
		}
	}
}

func TestListenRemovesStaleSocketFile(t *testing.T) {
	sockDir := t.TempDir()
	stalePath := filepath.Join(sockDir, "check.sock")
	if err := os.WriteFile(stalePath, []byte("stale"), 0o600); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}

	p := &process.Processor{
		Passwords: passwdfile.NewStore(passwdfile.Options{DataDir: t.TempDir()}),
		Policies:  policyfile.NewStore(t.TempDir(), log.Logger{}),
		Metrics:   metrics.Noop{},
	}
	s := &Server{Processor: p}
	if err := s.Listen(sockDir); err != nil {
		t.Fatalf("Listen did not clean up a stale socket file: %v", err)
	}
	t.Cleanup(s.Close)
}

func TestServeRoundTripsOverUnixSocket(t *testing.T) {
	_, sockDir := newTestServer(t)

	conn, err := net.Dial("unix", filepath.Join(sockDir, "reset.sock"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	w := wire.NewWriter()
	w.Int32(int32(wire.RstPasswd))
	w.Uint32(7)
	w.Int32(int32(wire.Normal))
	w.String("new-pass")
	if err := w.WriteTo(conn); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	status := wire.Status(reply.Int32())
	if status != wire.Success {
		t.Fatalf("status = %v, want SUCCESS", status)
	}
}

func TestCloseStopsAcceptingConnections(t *testing.T) {
	s, sockDir := newTestServer(t)
	s.Close()

	// give the accept loop goroutines a moment to observe the close
	time.Sleep(50 * time.Millisecond)

	_, err := net.Dial("unix", filepath.Join(sockDir, "check.sock"))
	if err == nil {
		t.Fatalf("expected dial to a closed listener to fail")
	}
}
