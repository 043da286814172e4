// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rbtree

import "iter"

type color uint8

const (
	black color = iota
	red
)

// Node is the linkage a record embeds to join a [Tree].
type Node[T any] struct {
	left   *T
	right  *T
	parent *T
	color  color
}

// Tree is an intrusive red-black tree of *T. The zero value is not
// usable; construct with [New] or call [Tree.Init].
type Tree[T any] struct {
	root    *T
	length  int
	node    func(*T) *Node[T]
	compare func(a, b *T) int
}

// New returns an empty tree. node returns the embedded linkage of a
// record; compare orders two records and returns a negative number,
// zero, or a positive number as a sorts before, equal to, or after b.
func New[T any](node func(*T) *Node[T], compare func(a, b *T) int) *Tree[T] {
	tree := &Tree[T]{}
	tree.Init(node, compare)
	return tree
}

// Init resets the tree to empty.
func (tree *Tree[T]) Init(node func(*T) *Node[T], compare func(a, b *T) int) {
	tree.root = nil
	tree.length = 0
	tree.node = node
	tree.compare = compare
}

// Root returns the root record, or nil when empty.
func (tree *Tree[T]) Root() *T { return tree.root }

// Len returns the number of records in the tree.
func (tree *Tree[T]) Len() int { return tree.length }

// Empty reports whether the tree holds no records.
func (tree *Tree[T]) Empty() bool { return tree.root == nil }

func (tree *Tree[T]) isRed(element *T) bool {
	return element != nil && tree.node(element).color == red
}

// Insert adds element to the tree. If a record with an equal key is
// already present, Insert returns it and leaves the tree unchanged;
// otherwise it returns nil.
func (tree *Tree[T]) Insert(element *T) *T {
	var parent *T
	comparison := 0
	current := tree.root
	for current != nil {
		parent = current
		comparison = tree.compare(element, current)
		switch {
		case comparison < 0:
			current = tree.node(current).left
		case comparison > 0:
			current = tree.node(current).right
		default:
			return current
		}
	}

	node := tree.node(element)
	node.left = nil
	node.right = nil
	node.parent = parent
	node.color = red
	switch {
	case parent == nil:
		tree.root = element
	case comparison < 0:
		tree.node(parent).left = element
	default:
		tree.node(parent).right = element
	}

	tree.insertFixup(element)
	tree.length++
	return nil
}

func (tree *Tree[T]) insertFixup(element *T) {
	for {
		parent := tree.node(element).parent
		if parent == nil || tree.node(parent).color == black {
			break
		}
		// A red parent is never the root, so the grandparent exists.
		grandparent := tree.node(parent).parent
		grandparentNode := tree.node(grandparent)

		if parent == grandparentNode.left {
			uncle := grandparentNode.right
			if tree.isRed(uncle) {
				tree.node(uncle).color = black
				tree.node(parent).color = black
				grandparentNode.color = red
				element = grandparent
				continue
			}
			if element == tree.node(parent).right {
				tree.rotateLeft(parent)
				element, parent = parent, element
			}
			tree.node(parent).color = black
			grandparentNode.color = red
			tree.rotateRight(grandparent)
		} else {
			uncle := grandparentNode.left
			if tree.isRed(uncle) {
				tree.node(uncle).color = black
				tree.node(parent).color = black
				grandparentNode.color = red
				element = grandparent
				continue
			}
			if element == tree.node(parent).left {
				tree.rotateRight(parent)
				element, parent = parent, element
			}
			tree.node(parent).color = black
			grandparentNode.color = red
			tree.rotateLeft(grandparent)
		}
	}
	tree.node(tree.root).color = black
}

// Remove unlinks element, which must be in the tree, and returns it.
func (tree *Tree[T]) Remove(element *T) *T {
	node := tree.node(element)

	var child, childParent *T
	removedColor := node.color

	switch {
	case node.left == nil:
		child = node.right
		childParent = node.parent
		tree.transplant(element, node.right)
	case node.right == nil:
		child = node.left
		childParent = node.parent
		tree.transplant(element, node.left)
	default:
		// Two children: the in-order successor takes element's place.
		successor := tree.minimum(node.right)
		successorNode := tree.node(successor)
		removedColor = successorNode.color
		child = successorNode.right
		if successorNode.parent == element {
			childParent = successor
		} else {
			childParent = successorNode.parent
			tree.transplant(successor, successorNode.right)
			successorNode.right = node.right
			tree.node(successorNode.right).parent = successor
		}
		tree.transplant(element, successor)
		successorNode.left = node.left
		tree.node(successorNode.left).parent = successor
		successorNode.color = node.color
	}

	if removedColor == black {
		tree.removeFixup(child, childParent)
	}

	node.left = nil
	node.right = nil
	node.parent = nil
	tree.length--
	return element
}

// removeFixup restores the black height after a black node was spliced
// out above child. child may be nil, so its parent is passed explicitly.
func (tree *Tree[T]) removeFixup(child, parent *T) {
	for child != tree.root && !tree.isRed(child) {
		parentNode := tree.node(parent)
		if child == parentNode.left {
			sibling := parentNode.right
			if tree.isRed(sibling) {
				tree.node(sibling).color = black
				parentNode.color = red
				tree.rotateLeft(parent)
				sibling = parentNode.right
			}
			siblingNode := tree.node(sibling)
			if !tree.isRed(siblingNode.left) && !tree.isRed(siblingNode.right) {
				siblingNode.color = red
				child = parent
				parent = tree.node(child).parent
				continue
			}
			if !tree.isRed(siblingNode.right) {
				tree.node(siblingNode.left).color = black
				siblingNode.color = red
				tree.rotateRight(sibling)
				sibling = parentNode.right
				siblingNode = tree.node(sibling)
			}
			siblingNode.color = parentNode.color
			parentNode.color = black
			if siblingNode.right != nil {
				tree.node(siblingNode.right).color = black
			}
			tree.rotateLeft(parent)
			child = tree.root
			break
		}

		sibling := parentNode.left
		if tree.isRed(sibling) {
			tree.node(sibling).color = black
			parentNode.color = red
			tree.rotateRight(parent)
			sibling = parentNode.left
		}
		siblingNode := tree.node(sibling)
		if !tree.isRed(siblingNode.left) && !tree.isRed(siblingNode.right) {
			siblingNode.color = red
			child = parent
			parent = tree.node(child).parent
			continue
		}
		if !tree.isRed(siblingNode.left) {
			tree.node(siblingNode.right).color = black
			siblingNode.color = red
			tree.rotateLeft(sibling)
			sibling = parentNode.left
			siblingNode = tree.node(sibling)
		}
		siblingNode.color = parentNode.color
		parentNode.color = black
		if siblingNode.left != nil {
			tree.node(siblingNode.left).color = black
		}
		tree.rotateRight(parent)
		child = tree.root
		break
	}
	if child != nil {
		tree.node(child).color = black
	}
}

// transplant replaces the subtree rooted at old with the one rooted at
// replacement in old's parent. old's own links are left untouched.
func (tree *Tree[T]) transplant(old, replacement *T) {
	parent := tree.node(old).parent
	tree.replaceChild(parent, old, replacement)
	if replacement != nil {
		tree.node(replacement).parent = parent
	}
}

func (tree *Tree[T]) replaceChild(parent, old, replacement *T) {
	if parent == nil {
		tree.root = replacement
		return
	}
	parentNode := tree.node(parent)
	if parentNode.left == old {
		parentNode.left = replacement
	} else {
		parentNode.right = replacement
	}
}

func (tree *Tree[T]) rotateLeft(element *T) {
	node := tree.node(element)
	pivot := node.right
	pivotNode := tree.node(pivot)

	node.right = pivotNode.left
	if pivotNode.left != nil {
		tree.node(pivotNode.left).parent = element
	}
	pivotNode.parent = node.parent
	tree.replaceChild(node.parent, element, pivot)
	pivotNode.left = element
	node.parent = pivot
}

func (tree *Tree[T]) rotateRight(element *T) {
	node := tree.node(element)
	pivot := node.left
	pivotNode := tree.node(pivot)

	node.left = pivotNode.right
	if pivotNode.right != nil {
		tree.node(pivotNode.right).parent = element
	}
	pivotNode.parent = node.parent
	tree.replaceChild(node.parent, element, pivot)
	pivotNode.right = element
	node.parent = pivot
}

// Find returns the record whose key equals key's, or nil. key is a
// probe record with only its key fields set; it is never linked.
func (tree *Tree[T]) Find(key *T) *T {
	return tree.FindFunc(func(element *T) int { return tree.compare(key, element) })
}

// FindFunc returns the record for which probe returns zero, or nil.
// probe compares the sought key against element with the tree's
// ordering: negative when the key sorts before element.
func (tree *Tree[T]) FindFunc(probe func(element *T) int) *T {
	current := tree.root
	for current != nil {
		comparison := probe(current)
		switch {
		case comparison < 0:
			current = tree.node(current).left
		case comparison > 0:
			current = tree.node(current).right
		default:
			return current
		}
	}
	return nil
}

// NFind returns the smallest record not less than key, or nil if every
// record sorts before key.
func (tree *Tree[T]) NFind(key *T) *T {
	return tree.NFindFunc(func(element *T) int { return tree.compare(key, element) })
}

// NFindFunc is [Tree.NFind] with a key-only probe as in [Tree.FindFunc].
func (tree *Tree[T]) NFindFunc(probe func(element *T) int) *T {
	var result *T
	current := tree.root
	for current != nil {
		comparison := probe(current)
		switch {
		case comparison < 0:
			result = current
			current = tree.node(current).left
		case comparison > 0:
			current = tree.node(current).right
		default:
			return current
		}
	}
	return result
}

// Min returns the smallest record, or nil when empty.
func (tree *Tree[T]) Min() *T {
	if tree.root == nil {
		return nil
	}
	return tree.minimum(tree.root)
}

// Max returns the largest record, or nil when empty.
func (tree *Tree[T]) Max() *T {
	if tree.root == nil {
		return nil
	}
	return tree.maximum(tree.root)
}

func (tree *Tree[T]) minimum(element *T) *T {
	for left := tree.node(element).left; left != nil; left = tree.node(element).left {
		element = left
	}
	return element
}

func (tree *Tree[T]) maximum(element *T) *T {
	for right := tree.node(element).right; right != nil; right = tree.node(element).right {
		element = right
	}
	return element
}

// Next returns the in-order successor of element, or nil at the end.
func (tree *Tree[T]) Next(element *T) *T {
	node := tree.node(element)
	if node.right != nil {
		return tree.minimum(node.right)
	}
	parent := node.parent
	for parent != nil && tree.node(parent).right == element {
		element = parent
		parent = tree.node(parent).parent
	}
	return parent
}

// Prev returns the in-order predecessor of element, or nil at the start.
func (tree *Tree[T]) Prev(element *T) *T {
	node := tree.node(element)
	if node.left != nil {
		return tree.maximum(node.left)
	}
	parent := node.parent
	for parent != nil && tree.node(parent).left == element {
		element = parent
		parent = tree.node(parent).parent
	}
	return parent
}

// All iterates in ascending order. The loop body may remove the
// current record: the successor is computed before yielding.
func (tree *Tree[T]) All() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		element := tree.Min()
		for element != nil {
			next := tree.Next(element)
			if !yield(element) {
				return
			}
			element = next
		}
	}
}

// Backward iterates in descending order, with the same removal
// allowance as [Tree.All].
func (tree *Tree[T]) Backward() iter.Seq[*T] {
	return func(yield func(*T) bool) {
		element := tree.Max()
		for element != nil {
			prev := tree.Prev(element)
			if !yield(element) {
				return
			}
			element = prev
		}
	}
}
