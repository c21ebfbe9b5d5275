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

// Package transport runs the four Unix-domain-socket endpoints (Check,
// Set, Reset, Policy), each its own listener goroutine feeding framed
// requests to a process.Processor. One goroutine per accepted
// connection, serving pipelined requests until the peer closes or sends
// a malformed frame.
package transport

import (
	"errors"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/authpasswd/authpasswd/framework/log"
	"github.com/authpasswd/authpasswd/internal/process"
	"github.com/authpasswd/authpasswd/internal/wire"
)

// Server owns the four listeners and the processor they feed.
type Server struct {
	Processor *process.Processor
	Log       log.Logger

	listeners []net.Listener
}

type endpointSpec struct {
	name string
	ep   process.Endpoint
	// credentialed is true for endpoints that resolve the acting user
	// from the connection's peer credentials rather than the body.
	credentialed bool
}

var endpoints = []endpointSpec{
	{"check.sock", process.EndpointCheck, true},
	{"set.sock", process.EndpointSet, true},
	{"reset.sock", process.EndpointReset, false},
	{"policy.sock", process.EndpointPolicy, false},
}

// Listen binds all four sockets under socketDir, removing any stale
// socket file left behind by a previous instance first.
func (s *Server) Listen(socketDir string) error {
	if err := os.MkdirAll(socketDir, 0o700); err != nil {
		return err
	}
	for _, spec := range endpoints {
		path := filepath.Join(socketDir, spec.name)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		l, err := net.Listen("unix", path)
		if err != nil {
			return err
		}
		if err := os.Chmod(path, 0o600); err != nil {
			return err
		}
		s.listeners = append(s.listeners, l)
		go s.acceptLoop(l, spec)
	}
	return nil
}

func (s *Server) Close() {
	for _, l := range s.listeners {
		l.Close()
	}
}

func (s *Server) acceptLoop(l net.Listener, spec endpointSpec) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		go s.serve(conn, spec)
	}
}

func (s *Server) serve(conn net.Conn, spec endpointSpec) {
	defer conn.Close()

	connID := uuid.New().String()
	connLog := s.Log
	connLog.Fields = map[string]interface{}{"conn": connID, "endpoint": spec.name}

	id := process.Identity{}
	if spec.credentialed {
		uid, err := peerUID(conn)
		if err != nil {
			connLog.Error("peer credential lookup failed", err)
		} else {
			id.UID = uid
			id.Resolved = true
		}
	} else {
		// Reset and Policy carry the target user ID in the request body;
		// Resolved only gates the Check/Set NO_USER path, so it is set
		// unconditionally here.
		id.Resolved = true
	}

	for {
		r, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}
		w := wire.NewWriter()
		if err := s.Processor.Dispatch(spec.ep, id, r, w); err != nil {
			connLog.Debugln("closing connection after malformed frame:", err)
			return
		}
		if err := w.WriteTo(conn); err != nil {
			connLog.Debugln("write failed:", err)
			return
		}
	}
}
