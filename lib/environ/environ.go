// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package environ

import (
	"iter"
	"path"
	"strings"

	"github.com/bureau-foundation/mux/lib/rbtree"
)

// Flags qualify an entry.
type Flags uint8

// Hidden keeps an entry out of exported environments.
const Hidden Flags = 1 << 0

// Entry is one variable.
type Entry struct {
	node rbtree.Node[Entry]

	Name  string
	Value string
	// IsSet is false for a cleared entry, whose Value is empty.
	IsSet bool
	Flags Flags
}

// String formats the entry as a shell would list it: NAME=value, or
// -NAME for a cleared entry.
func (entry *Entry) String() string {
	if !entry.IsSet {
		return "-" + entry.Name
	}
	return entry.Name + "=" + entry.Value
}

func entryNode(entry *Entry) *rbtree.Node[Entry] { return &entry.node }

func compareEntries(a, b *Entry) int { return strings.Compare(a.Name, b.Name) }

// Environ is a set of variables ordered by name. The zero value is not
// usable; construct with [New].
type Environ struct {
	entries rbtree.Tree[Entry]
}

// New returns an empty environment.
func New() *Environ {
	env := &Environ{}
	env.entries.Init(entryNode, compareEntries)
	return env
}

// FromList builds an environment from NAME=value strings, as returned
// by os.Environ. Malformed strings are skipped.
func FromList(list []string) *Environ {
	env := New()
	for _, variable := range list {
		env.Put(variable, 0)
	}
	return env
}

// Find returns the entry for name, or nil.
func (env *Environ) Find(name string) *Entry {
	return env.entries.FindFunc(func(entry *Entry) int { return strings.Compare(name, entry.Name) })
}

// Set defines name as value, replacing any existing entry's value and
// flags.
func (env *Environ) Set(name, value string, flags Flags) {
	if entry := env.Find(name); entry != nil {
		entry.Value = value
		entry.IsSet = true
		entry.Flags = flags
		return
	}
	env.entries.Insert(&Entry{Name: name, Value: value, IsSet: true, Flags: flags})
}

// Clear keeps name in the environment without a value, creating the
// entry if needed.
func (env *Environ) Clear(name string) {
	if entry := env.Find(name); entry != nil {
		entry.Value = ""
		entry.IsSet = false
		return
	}
	env.entries.Insert(&Entry{Name: name})
}

// Put parses NAME=value and sets it. It reports false, changing
// nothing, when variable has no '=' or an empty name.
func (env *Environ) Put(variable string, flags Flags) bool {
	name, value, ok := strings.Cut(variable, "=")
	if !ok || name == "" {
		return false
	}
	env.Set(name, value, flags)
	return true
}

// Unset removes name entirely.
func (env *Environ) Unset(name string) {
	if entry := env.Find(name); entry != nil {
		env.entries.Remove(entry)
	}
}

// Copy sets every entry of src into env, cleared entries included.
func (env *Environ) Copy(src *Environ) {
	for entry := range src.entries.All() {
		if entry.IsSet {
			env.Set(entry.Name, entry.Value, entry.Flags)
		} else {
			env.Clear(entry.Name)
			env.Find(entry.Name).Flags = entry.Flags
		}
	}
}

// Update copies into env the variables of src whose names match any of
// patterns (shell globs). A pattern matching nothing in src clears its
// name in env, so a variable the client no longer has is not inherited
// from an outer environment.
func (env *Environ) Update(src *Environ, patterns []string) {
	for _, pattern := range patterns {
		found := false
		for entry := range src.entries.All() {
			if matched, err := path.Match(pattern, entry.Name); err != nil || !matched {
				continue
			}
			if entry.IsSet {
				env.Set(entry.Name, entry.Value, entry.Flags)
			} else {
				env.Clear(entry.Name)
			}
			found = true
		}
		if !found {
			env.Clear(pattern)
		}
	}
}

// Len returns the number of entries.
func (env *Environ) Len() int { return env.entries.Len() }

// All yields entries in name order. Unset may be called on the yielded
// entry.
func (env *Environ) All() iter.Seq[*Entry] { return env.entries.All() }

// Environ returns the exported variables as NAME=value strings in name
// order, omitting cleared and hidden entries.
func (env *Environ) Environ() []string {
	var list []string
	for entry := range env.entries.All() {
		if entry.IsSet && entry.Flags&Hidden == 0 {
			list = append(list, entry.Name+"="+entry.Value)
		}
	}
	return list
}
