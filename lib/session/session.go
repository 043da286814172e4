// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session is the server's registry of named sessions.
//
// Sessions are ordered by name. Each has an id assigned from a counter
// that never reuses values within a server's lifetime, so "$3" keeps
// naming the same session across renames.
package session

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/mux/lib/clock"
	"github.com/bureau-foundation/mux/lib/environ"
	"github.com/bureau-foundation/mux/lib/rbtree"
)

var (
	// ErrExists reports a name already taken by another session.
	ErrExists = errors.New("duplicate session")
	// ErrInvalidName reports a name that is empty or contains a
	// character reserved for target syntax.
	ErrInvalidName = errors.New("invalid session name")
	// ErrNotFound reports a target that matches no session.
	ErrNotFound = errors.New("can't find session")
)

// Session is one named session.
type Session struct {
	node rbtree.Node[Session]

	id      uint32
	name    string
	created time.Time

	// Environ holds variables set for this session only.
	Environ *environ.Environ
}

// ID returns the session's permanent id.
func (s *Session) ID() uint32 { return s.id }

// Name returns the session's current name.
func (s *Session) Name() string { return s.name }

// Created returns when the session was created.
func (s *Session) Created() time.Time { return s.created }

func (s *Session) String() string { return fmt.Sprintf("$%d (%s)", s.id, s.name) }

func sessionNode(s *Session) *rbtree.Node[Session] { return &s.node }

func compareSessions(a, b *Session) int { return strings.Compare(a.name, b.name) }

// CheckName reports whether name may be used for a session.
func CheckName(name string) error {
	if name == "" || strings.ContainsAny(name, ":.") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Registry holds the server's sessions.
type Registry struct {
	sessions rbtree.Tree[Session]
	nextID   uint32
	clock    clock.Clock
}

// NewRegistry returns an empty registry stamping creation times from c.
func NewRegistry(c clock.Clock) *Registry {
	registry := &Registry{clock: c}
	registry.sessions.Init(sessionNode, compareSessions)
	return registry
}

// Create adds a session. An empty name is replaced by the new
// session's id, as a number.
func (registry *Registry) Create(name string) (*Session, error) {
	if name == "" {
		name = strconv.FormatUint(uint64(registry.nextID), 10)
	}
	if err := CheckName(name); err != nil {
		return nil, err
	}
	if registry.Find(name) != nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	s := &Session{
		id:      registry.nextID,
		name:    name,
		created: registry.clock.Now(),
		Environ: environ.New(),
	}
	registry.nextID++
	registry.sessions.Insert(s)
	return s, nil
}

// Find returns the session named name, or nil.
func (registry *Registry) Find(name string) *Session {
	return registry.sessions.FindFunc(func(s *Session) int { return strings.Compare(name, s.name) })
}

// FindByID returns the session with the given id, or nil.
func (registry *Registry) FindByID(id uint32) *Session {
	for s := range registry.sessions.All() {
		if s.id == id {
			return s
		}
	}
	return nil
}

// Lookup resolves a target: "$N" names a session by id, anything else
// by exact name, falling back to the only session whose name starts
// with target.
func (registry *Registry) Lookup(target string) (*Session, error) {
	if rest, ok := strings.CutPrefix(target, "$"); ok {
		if id, err := strconv.ParseUint(rest, 10, 32); err == nil {
			if s := registry.FindByID(uint32(id)); s != nil {
				return s, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	if s := registry.Find(target); s != nil {
		return s, nil
	}
	var match *Session
	for s := registry.sessions.NFindFunc(func(s *Session) int { return strings.Compare(target, s.name) }); s != nil; s = registry.sessions.Next(s) {
		if !strings.HasPrefix(s.name, target) {
			break
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %s is ambiguous", ErrNotFound, target)
		}
		match = s
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, target)
	}
	return match, nil
}

// Rename changes s's name, keeping its id.
func (registry *Registry) Rename(s *Session, name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if name == s.name {
		return nil
	}
	if registry.Find(name) != nil {
		return fmt.Errorf("%w: %s", ErrExists, name)
	}
	registry.sessions.Remove(s)
	s.name = name
	registry.sessions.Insert(s)
	return nil
}

// Remove deletes s from the registry.
func (registry *Registry) Remove(s *Session) {
	registry.sessions.Remove(s)
}

// Len returns the number of sessions.
func (registry *Registry) Len() int { return registry.sessions.Len() }

// All yields sessions in name order. Remove may be called on the
// yielded session.
func (registry *Registry) All() iter.Seq[*Session] { return registry.sessions.All() }
