// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package waitfor implements named wait channels: clients can block on
// a name until another signals it, or use a name as a mutex.
//
// A signal with no one waiting is remembered, and the next wait on that
// name returns at once and consumes it. A lock held by one client
// queues further lockers in arrival order; unlocking hands the lock
// straight to the first queued locker.
//
// A channel exists only while it has a remembered signal, a holder,
// or waiters; it is removed as soon as it becomes idle.
package waitfor

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/bureau-foundation/mux/lib/rbtree"
	"github.com/bureau-foundation/mux/lib/tailq"
)

// ErrNotLocked reports an unlock of a channel no one holds.
var ErrNotLocked = errors.New("channel not locked")

// Waiter is a blocked waiter or locker. Resume is called exactly once,
// when the waiter is woken or granted the lock, unless it is canceled
// first.
type Waiter struct {
	link    tailq.Link[Waiter]
	channel *Channel
	locker  bool

	Resume func()
}

func waiterLink(waiter *Waiter) *tailq.Link[Waiter] { return &waiter.link }

// Channel is one named wait channel.
type Channel struct {
	node rbtree.Node[Channel]

	name    string
	woken   bool
	locked  bool
	waiters tailq.Queue[Waiter]
	lockers tailq.Queue[Waiter]
}

// Name returns the channel's name.
func (channel *Channel) Name() string { return channel.name }

// Woken reports whether a signal is pending with no one to receive it.
func (channel *Channel) Woken() bool { return channel.woken }

// Locked reports whether the channel is held.
func (channel *Channel) Locked() bool { return channel.locked }

// Waiters returns the number of blocked waiters.
func (channel *Channel) Waiters() int { return channel.waiters.Len() }

// Lockers returns the number of clients queued for the lock.
func (channel *Channel) Lockers() int { return channel.lockers.Len() }

func (channel *Channel) idle() bool {
	return !channel.woken && !channel.locked && channel.waiters.Empty() && channel.lockers.Empty()
}

func channelNode(channel *Channel) *rbtree.Node[Channel] { return &channel.node }

func compareChannels(a, b *Channel) int { return strings.Compare(a.name, b.name) }

// Registry holds the wait channels of one server.
type Registry struct {
	channels rbtree.Tree[Channel]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	registry := &Registry{}
	registry.channels.Init(channelNode, compareChannels)
	return registry
}

// Find returns the channel named name, or nil.
func (registry *Registry) Find(name string) *Channel {
	return registry.channels.FindFunc(func(channel *Channel) int { return strings.Compare(name, channel.name) })
}

func (registry *Registry) findOrCreate(name string) *Channel {
	if channel := registry.Find(name); channel != nil {
		return channel
	}
	channel := &Channel{name: name}
	channel.waiters.Init(waiterLink)
	channel.lockers.Init(waiterLink)
	registry.channels.Insert(channel)
	return channel
}

func (registry *Registry) removeIfIdle(channel *Channel) {
	if channel.idle() {
		registry.channels.Remove(channel)
	}
}

// Wait blocks on name. If a signal is pending it is consumed and Wait
// returns nil without calling resume; otherwise it returns the queued
// waiter, which can be passed to [Registry.Cancel].
func (registry *Registry) Wait(name string, resume func()) *Waiter {
	channel := registry.findOrCreate(name)
	if channel.woken {
		channel.woken = false
		registry.removeIfIdle(channel)
		return nil
	}
	waiter := &Waiter{channel: channel, Resume: resume}
	channel.waiters.InsertTail(waiter)
	return waiter
}

// Signal wakes every waiter on name in arrival order, or, with none,
// leaves a signal pending for the next waiter. It returns the number
// woken.
func (registry *Registry) Signal(name string) int {
	channel := registry.findOrCreate(name)
	if channel.waiters.Empty() {
		channel.woken = true
		return 0
	}
	// Waiters that wait again from Resume queue for the next signal.
	var woken []*Waiter
	for waiter := range channel.waiters.AllSafe() {
		channel.waiters.Remove(waiter)
		waiter.channel = nil
		woken = append(woken, waiter)
	}
	registry.removeIfIdle(channel)
	for _, waiter := range woken {
		waiter.Resume()
	}
	return len(woken)
}

// Lock takes name's lock. If it is free Lock takes it and returns nil
// without calling resume; otherwise it returns the queued locker,
// resumed when the lock passes to it.
func (registry *Registry) Lock(name string, resume func()) *Waiter {
	channel := registry.findOrCreate(name)
	if !channel.locked {
		channel.locked = true
		return nil
	}
	locker := &Waiter{channel: channel, locker: true, Resume: resume}
	channel.lockers.InsertTail(locker)
	return locker
}

// Unlock releases name's lock, handing it to the first queued locker
// if there is one.
func (registry *Registry) Unlock(name string) error {
	channel := registry.Find(name)
	if channel == nil || !channel.locked {
		return fmt.Errorf("%w: %s", ErrNotLocked, name)
	}
	if next := channel.lockers.First(); next != nil {
		channel.lockers.Remove(next)
		next.channel = nil
		next.Resume()
		return nil
	}
	channel.locked = false
	registry.removeIfIdle(channel)
	return nil
}

// Cancel withdraws a waiter or locker that has not been resumed, as
// when its client disconnects. Canceling a resumed waiter does
// nothing.
func (registry *Registry) Cancel(waiter *Waiter) {
	channel := waiter.channel
	if channel == nil {
		return
	}
	if waiter.locker {
		channel.lockers.Remove(waiter)
	} else {
		channel.waiters.Remove(waiter)
	}
	waiter.channel = nil
	registry.removeIfIdle(channel)
}

// Flush resumes every waiter and locker and removes every channel, for
// server shutdown.
func (registry *Registry) Flush() {
	for channel := range registry.channels.All() {
		for waiter := range channel.waiters.AllSafe() {
			channel.waiters.Remove(waiter)
			waiter.channel = nil
			waiter.Resume()
		}
		for locker := range channel.lockers.AllSafe() {
			channel.lockers.Remove(locker)
			locker.channel = nil
			locker.Resume()
		}
		registry.channels.Remove(channel)
	}
}

// Len returns the number of live channels.
func (registry *Registry) Len() int { return registry.channels.Len() }

// All yields channels in name order.
func (registry *Registry) All() iter.Seq[*Channel] { return registry.channels.All() }
