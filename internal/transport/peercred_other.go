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

//go:build !linux

package transport

import (
	"fmt"
	"net"
)

// peerUID has no SO_PEERCRED equivalent wired on non-Linux targets; the
// daemon is only ever deployed on Linux, so this just fails closed.
func peerUID(conn net.Conn) (uint32, error) {
	return 0, fmt.Errorf("transport: peer credential resolution is unsupported on this platform")
}
