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

package lexer

import (
	"fmt"
	"io"
)

// Dispenser walks the token stream produced by allTokens one token at a
// time, giving a parser three ways to advance: any next token, the next
// token on the same line, or the first token of the next line.
type Dispenser struct {
	filename string
	tokens   []Token
	cursor   int
}

// NewDispenser tokenizes input in full and returns a Dispenser
// positioned before the first token.
func NewDispenser(filename string, input io.Reader) Dispenser {
	tokens, _ := allTokens(input)
	return Dispenser{filename: filename, tokens: tokens, cursor: -1}
}

// Next advances the cursor by one token, regardless of line.
func (d *Dispenser) Next() bool {
	if d.cursor+1 < len(d.tokens) {
		d.cursor++
		return true
	}
	d.cursor = len(d.tokens)
	return false
}

// NextArg advances the cursor only if the next token is on the same
// line as the current one -- the token stream for "name arg0 arg1".
func (d *Dispenser) NextArg() bool {
	if d.cursor < 0 {
		return d.Next()
	}
	if d.cursor+1 >= len(d.tokens) {
		return false
	}
	if d.tokens[d.cursor+1].Line == d.tokens[d.cursor].Line {
		d.cursor++
		return true
	}
	return false
}

// NextLine advances the cursor only if the next token starts a new
// line; if the next token is on the current line, the cursor stays put
// and NextLine returns false.
func (d *Dispenser) NextLine() bool {
	if d.cursor < 0 {
		return d.Next()
	}
	if d.cursor+1 >= len(d.tokens) {
		return false
	}
	if d.tokens[d.cursor+1].Line > d.tokens[d.cursor].Line {
		d.cursor++
		return true
	}
	return false
}

// Val returns the text of the token under the cursor, or "" before the
// first token or past the last one.
func (d *Dispenser) Val() string {
	if d.cursor < 0 || d.cursor >= len(d.tokens) {
		return ""
	}
	return d.tokens[d.cursor].Text
}

// Line returns the line number of the token under the cursor, clamping
// to the last token's line once the stream is exhausted.
func (d *Dispenser) Line() int {
	if len(d.tokens) == 0 {
		return 0
	}
	if d.cursor < 0 {
		return d.tokens[0].Line
	}
	if d.cursor >= len(d.tokens) {
		return d.tokens[len(d.tokens)-1].Line
	}
	return d.tokens[d.cursor].Line
}

// File returns the filename this Dispenser was constructed with.
func (d *Dispenser) File() string { return d.filename }

// Err formats reason with the current file and line.
func (d *Dispenser) Err(reason string) error {
	return fmt.Errorf("%s:%d: %s", d.File(), d.Line(), reason)
}

// SyntaxErr reports an unexpected token, naming what was expected
// instead.
func (d *Dispenser) SyntaxErr(expected string) error {
	return fmt.Errorf("%s:%d: unexpected token %q, expecting %s", d.File(), d.Line(), d.Val(), expected)
}
