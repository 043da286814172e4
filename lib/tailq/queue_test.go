// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tailq

import (
	"math/rand/v2"
	"slices"
	"testing"
)

type item struct {
	link  Link[item]
	value int
}

func itemLink(i *item) *Link[item] { return &i.link }

func values(queue *Queue[item]) []int {
	var out []int
	for element := range queue.All() {
		out = append(out, element.value)
	}
	return out
}

func backwardValues(queue *Queue[item]) []int {
	var out []int
	for element := range queue.Backward() {
		out = append(out, element.value)
	}
	return out
}

// checkConsistent verifies that forward and backward traversal agree
// with each other, with Len, and with the expected model.
func checkConsistent(t *testing.T, queue *Queue[item], want []int) {
	t.Helper()
	forward := values(queue)
	if !slices.Equal(forward, want) {
		t.Fatalf("forward = %v, want %v", forward, want)
	}
	backward := backwardValues(queue)
	slices.Reverse(backward)
	if !slices.Equal(backward, want) {
		t.Fatalf("reversed backward = %v, want %v", backward, want)
	}
	if queue.Len() != len(want) {
		t.Fatalf("Len() = %d, want %d", queue.Len(), len(want))
	}
	if queue.Empty() != (len(want) == 0) {
		t.Fatalf("Empty() = %v with %d elements", queue.Empty(), len(want))
	}
	if len(want) > 0 {
		if queue.First().value != want[0] {
			t.Fatalf("First() = %d, want %d", queue.First().value, want[0])
		}
		if queue.Last().value != want[len(want)-1] {
			t.Fatalf("Last() = %d, want %d", queue.Last().value, want[len(want)-1])
		}
	} else if queue.First() != nil || queue.Last() != nil {
		t.Fatal("empty queue has non-nil ends")
	}
}

func TestInsertAndRemove(t *testing.T) {
	t.Parallel()

	queue := New(itemLink)
	checkConsistent(t, queue, nil)

	a, b, c, d := &item{value: 1}, &item{value: 2}, &item{value: 3}, &item{value: 4}
	queue.InsertTail(b)
	queue.InsertHead(a)
	queue.InsertTail(d)
	queue.InsertBefore(d, c)
	checkConsistent(t, queue, []int{1, 2, 3, 4})

	if queue.Next(b) != c || queue.Prev(c) != b {
		t.Fatal("Next/Prev disagree with insertion order")
	}
	if queue.Prev(a) != nil || queue.Next(d) != nil {
		t.Fatal("ends have neighbours")
	}

	queue.Remove(a)
	checkConsistent(t, queue, []int{2, 3, 4})
	queue.Remove(d)
	checkConsistent(t, queue, []int{2, 3})
	queue.InsertAfter(c, a)
	checkConsistent(t, queue, []int{2, 3, 1})
	queue.Remove(c)
	checkConsistent(t, queue, []int{2, 1})
	queue.Remove(b)
	queue.Remove(a)
	checkConsistent(t, queue, nil)
}

func TestReplace(t *testing.T) {
	t.Parallel()

	queue := New(itemLink)
	a, b, c := &item{value: 1}, &item{value: 2}, &item{value: 3}
	queue.InsertTail(a)
	queue.InsertTail(b)

	replacement := &item{value: 9}
	queue.Replace(a, replacement)
	checkConsistent(t, queue, []int{9, 2})
	queue.Replace(b, c)
	checkConsistent(t, queue, []int{9, 3})
}

func TestConcat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		left  []int
		right []int
	}{
		{name: "both non-empty", left: []int{1, 2}, right: []int{3, 4, 5}},
		{name: "left empty", left: nil, right: []int{3, 4}},
		{name: "right empty", left: []int{1}, right: nil},
		{name: "both empty", left: nil, right: nil},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			left := New(itemLink)
			right := New(itemLink)
			for _, v := range test.left {
				left.InsertTail(&item{value: v})
			}
			for _, v := range test.right {
				right.InsertTail(&item{value: v})
			}

			left.Concat(right)

			checkConsistent(t, left, append(slices.Clone(test.left), test.right...))
			checkConsistent(t, right, nil)
		})
	}
}

func TestSafeTraversalAllowsRemoval(t *testing.T) {
	t.Parallel()

	queue := New(itemLink)
	for v := range 10 {
		queue.InsertTail(&item{value: v})
	}

	for element := range queue.AllSafe() {
		if element.value%2 == 0 {
			queue.Remove(element)
		}
	}
	checkConsistent(t, queue, []int{1, 3, 5, 7, 9})

	for element := range queue.BackwardSafe() {
		if element.value > 4 {
			queue.Remove(element)
		}
	}
	checkConsistent(t, queue, []int{1, 3})
}

func TestEarlyExit(t *testing.T) {
	t.Parallel()

	queue := New(itemLink)
	for v := range 5 {
		queue.InsertTail(&item{value: v})
	}

	var seen []int
	for element := range queue.All() {
		seen = append(seen, element.value)
		if element.value == 2 {
			break
		}
	}
	if !slices.Equal(seen, []int{0, 1, 2}) {
		t.Fatalf("seen = %v, want [0 1 2]", seen)
	}
}

// TestRandomOperations drives a queue and a slice model through the
// same random operations and checks they never diverge.
func TestRandomOperations(t *testing.T) {
	t.Parallel()

	random := rand.New(rand.NewPCG(1, 2))
	queue := New(itemLink)
	var model []*item
	next := 0

	for range 5000 {
		switch op := random.IntN(6); {
		case op == 0 || len(model) == 0:
			element := &item{value: next}
			next++
			queue.InsertTail(element)
			model = append(model, element)
		case op == 1:
			element := &item{value: next}
			next++
			queue.InsertHead(element)
			model = slices.Insert(model, 0, element)
		case op == 2:
			index := random.IntN(len(model))
			element := &item{value: next}
			next++
			queue.InsertAfter(model[index], element)
			model = slices.Insert(model, index+1, element)
		case op == 3:
			index := random.IntN(len(model))
			element := &item{value: next}
			next++
			queue.InsertBefore(model[index], element)
			model = slices.Insert(model, index, element)
		case op == 4:
			index := random.IntN(len(model))
			queue.Remove(model[index])
			model = slices.Delete(model, index, index+1)
		default:
			other := New(itemLink)
			var tail []*item
			for range random.IntN(4) {
				element := &item{value: next}
				next++
				other.InsertTail(element)
				tail = append(tail, element)
			}
			queue.Concat(other)
			model = append(model, tail...)
		}

		want := make([]int, len(model))
		for i, element := range model {
			want[i] = element.value
		}
		checkConsistent(t, queue, want)
	}
}
