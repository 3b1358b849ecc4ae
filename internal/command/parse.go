// ABOUTME: Parses raw input lines of the form name[/sw1[/sw2...]] [argument[=second]]
// ABOUTME: Names and switches are case-insensitive; a leading @ is accepted and dropped

package command

import (
	"errors"
	"strings"
	"unicode"

	"github.com/2389/coven-keep/internal/session"
	"github.com/2389/coven-keep/internal/store"
)

// ErrEmptyInput indicates a blank line.
var ErrEmptyInput = errors.New("empty input")

// Invocation is one parsed command call.
type Invocation struct {
	Raw            string
	Name           string
	Switches       []string
	Argument       string
	SecondArgument string
	HasSecond      bool // an "=" was present in the argument

	Actor   *store.Actor
	Session *session.Session
}

// HasSwitch reports whether the switch was given.
func (inv *Invocation) HasSwitch(name string) bool {
	for _, sw := range inv.Switches {
		if sw == name {
			return true
		}
	}
	return false
}

// Parse splits a raw line into an Invocation without actor or session.
func Parse(raw string) (*Invocation, error) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return nil, ErrEmptyInput
	}

	head, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		head, rest = line[:i], strings.TrimSpace(line[i:])
	}

	name, switches := splitHead(head)
	if name == "" {
		return nil, ErrEmptyInput
	}

	inv := &Invocation{
		Raw:      raw,
		Name:     name,
		Switches: switches,
		Argument: rest,
	}
	if first, second, ok := strings.Cut(rest, "="); ok {
		inv.Argument = strings.TrimSpace(first)
		inv.SecondArgument = strings.TrimSpace(second)
		inv.HasSecond = true
	}
	return inv, nil
}

// splitHead splits "@boot/quiet/port" into "boot" and ["quiet", "port"].
func splitHead(head string) (string, []string) {
	parts := strings.Split(strings.TrimPrefix(head, "@"), "/")
	name := strings.ToLower(parts[0])
	var switches []string
	for _, sw := range parts[1:] {
		sw = strings.ToLower(strings.TrimSpace(sw))
		if sw != "" {
			switches = append(switches, sw)
		}
	}
	return name, switches
}

// expandAlias rewrites the invocation's name using an alias target such as
// "boot/quiet". Switches from the target come before those typed by the user.
func (inv *Invocation) expandAlias(target string) {
	name, switches := splitHead(strings.TrimSpace(target))
	if name == "" {
		return
	}
	inv.Name = name
	if len(switches) > 0 {
		inv.Switches = append(switches, inv.Switches...)
	}
}
