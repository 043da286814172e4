// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rbtree implements an intrusive red-black tree.
//
// Records join a tree through a [Node] field embedded in the record, and
// the tree orders them with a caller-supplied three-way comparator. As
// with [github.com/bureau-foundation/mux/lib/tailq], the tree never
// allocates and never copies records: insertion, removal, and
// rebalancing only relink pointers. Removing a record with two children
// moves its in-order successor into its position, so pointers callers
// hold to other records stay valid across any sequence of operations.
//
//	type user struct {
//		node rbtree.Node[user]
//		uid  uint32
//	}
//
//	users := rbtree.New(
//		func(u *user) *rbtree.Node[user] { return &u.node },
//		func(a, b *user) int { return cmp.Compare(a.uid, b.uid) },
//	)
//	if existing := users.Insert(&user{uid: 1000}); existing != nil {
//		// key already present; tree unchanged
//	}
//	found := users.FindFunc(func(u *user) int { return cmp.Compare(1000, u.uid) })
//
// Insert restores the red-black properties after every call: the root
// is black, no red node has a red child, and every root-to-leaf path
// has the same number of black nodes. Height is therefore at most
// 2·log2(n+1) and Insert, Remove, Find, and NFind are O(log n).
//
// Keys must not change while a record is in the tree. A Tree is not
// safe for concurrent use.
package rbtree
