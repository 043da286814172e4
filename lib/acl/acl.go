// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package acl is the server's access list: the users, by uid, allowed
// to connect, and which of them may only observe.
package acl

import (
	"cmp"
	"iter"

	"github.com/bureau-foundation/mux/lib/rbtree"
)

// User is one access list entry.
type User struct {
	node rbtree.Node[User]

	UID      uint32
	ReadOnly bool
}

func userNode(user *User) *rbtree.Node[User] { return &user.node }

func compareUsers(a, b *User) int { return cmp.Compare(a.UID, b.UID) }

// List is a uid-ordered access list.
type List struct {
	users rbtree.Tree[User]
}

// New returns a list allowing root and ownUID with write access.
func New(ownUID uint32) *List {
	list := &List{}
	list.users.Init(userNode, compareUsers)
	list.Allow(0)
	list.Allow(ownUID)
	return list
}

// Find returns the entry for uid, or nil.
func (list *List) Find(uid uint32) *User {
	return list.users.FindFunc(func(user *User) int { return cmp.Compare(uid, user.UID) })
}

// Allow adds uid with write access. An existing entry is unchanged.
func (list *List) Allow(uid uint32) *User {
	if user := list.Find(uid); user != nil {
		return user
	}
	user := &User{UID: uid}
	list.users.Insert(user)
	return user
}

// Deny removes uid. It reports whether uid was present.
func (list *List) Deny(uid uint32) bool {
	user := list.Find(uid)
	if user == nil {
		return false
	}
	list.users.Remove(user)
	return true
}

// AllowWrite clears the read-only mark of uid. It reports whether uid
// is in the list.
func (list *List) AllowWrite(uid uint32) bool {
	user := list.Find(uid)
	if user == nil {
		return false
	}
	user.ReadOnly = false
	return true
}

// DenyWrite marks uid read-only. It reports whether uid is in the list.
func (list *List) DenyWrite(uid uint32) bool {
	user := list.Find(uid)
	if user == nil {
		return false
	}
	user.ReadOnly = true
	return true
}

// Join decides whether a connecting user is admitted and, if so,
// whether read-only.
func (list *List) Join(uid uint32) (allowed, readOnly bool) {
	user := list.Find(uid)
	if user == nil {
		return false, false
	}
	return true, user.ReadOnly
}

// Len returns the number of users.
func (list *List) Len() int { return list.users.Len() }

// All yields users in uid order.
func (list *List) All() iter.Seq[*User] { return list.users.All() }
