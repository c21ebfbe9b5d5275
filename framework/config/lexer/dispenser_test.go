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
	"strings"
	"testing"
)

func TestDispenserNextWalksEveryToken(t *testing.T) {
	d := NewDispenser("<test>", strings.NewReader("a b c"))

	var got []string
	for d.Next() {
		got = append(got, d.Val())
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
	if d.Next() {
		t.Errorf("Next() after last token = true, want false")
	}
}

func TestDispenserNextArgStopsAtNewline(t *testing.T) {
	d := NewDispenser("<test>", strings.NewReader("name arg0 arg1\nother"))

	if !d.Next() || d.Val() != "name" {
		t.Fatalf("first token = %q, want name", d.Val())
	}
	if !d.NextArg() || d.Val() != "arg0" {
		t.Fatalf("NextArg = %q, want arg0", d.Val())
	}
	if !d.NextArg() || d.Val() != "arg1" {
		t.Fatalf("NextArg = %q, want arg1", d.Val())
	}
	if d.NextArg() {
		t.Fatalf("NextArg crossed a newline into %q", d.Val())
	}
}

func TestDispenserNextLineAdvancesOnlyAcrossNewline(t *testing.T) {
	d := NewDispenser("<test>", strings.NewReader("name arg0\nother"))

	if !d.Next() || d.Val() != "name" {
		t.Fatalf("first token = %q", d.Val())
	}
	if d.NextLine() {
		t.Fatalf("NextLine advanced within the same line to %q", d.Val())
	}
	if !d.Next() || d.Val() != "arg0" {
		t.Fatalf("Next = %q, want arg0", d.Val())
	}
	if !d.NextLine() || d.Val() != "other" {
		t.Fatalf("NextLine = %q, want other", d.Val())
	}
}

func TestDispenserValEmptyOutsideTokenRange(t *testing.T) {
	d := NewDispenser("<test>", strings.NewReader("only"))
	if d.Val() != "" {
		t.Errorf("Val() before Next() = %q, want empty", d.Val())
	}
	d.Next()
	if !d.Next() {
		// second Next() fails, cursor stays past the single token
	}
	if d.Val() != "" {
		t.Errorf("Val() past last token = %q, want empty", d.Val())
	}
}

func TestDispenserLineTracksSourceLine(t *testing.T) {
	d := NewDispenser("<test>", strings.NewReader("a\nb\n\nc"))
	lines := []int{}
	for d.Next() {
		lines = append(lines, d.Line())
	}
	want := []int{1, 2, 4}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("lines[%d] = %d, want %d", i, lines[i], want[i])
		}
	}
}

func TestDispenserFileReturnsConstructorArgument(t *testing.T) {
	d := NewDispenser("site.conf", strings.NewReader("x"))
	if d.File() != "site.conf" {
		t.Errorf("File() = %q, want site.conf", d.File())
	}
}

func TestDispenserErrIncludesFileAndLine(t *testing.T) {
	d := NewDispenser("site.conf", strings.NewReader("a\nb"))
	d.Next()
	d.Next()
	err := d.Err("broken")
	want := "site.conf:2: broken"
	if err.Error() != want {
		t.Errorf("Err() = %q, want %q", err.Error(), want)
	}
}

func TestDispenserSyntaxErrNamesOffendingToken(t *testing.T) {
	d := NewDispenser("site.conf", strings.NewReader("}"))
	d.Next()
	err := d.SyntaxErr("a directive name")
	want := `site.conf:1: unexpected token "}", expecting a directive name`
	if err.Error() != want {
		t.Errorf("SyntaxErr() = %q, want %q", err.Error(), want)
	}
}

func TestAllTokensHonorsQuotingAndComments(t *testing.T) {
	tokens, err := allTokens(strings.NewReader(`a "b c" # trailing comment
d`))
	if err != nil {
		t.Fatalf("allTokens error: %v", err)
	}
	want := []string{"a", "b c", "d"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i, w := range want {
		if tokens[i].Text != w {
			t.Errorf("tokens[%d].Text = %q, want %q", i, tokens[i].Text, w)
		}
	}
}
