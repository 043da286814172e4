// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imsg

import (
	"os"

	"golang.org/x/sys/unix"
)

// DescriptorBudget decides whether the process can afford to accept
// more descriptors. [Channel.Read] consults it before every read, since
// a read may carry a descriptor and the kernel installs it in the
// descriptor table whether or not anyone wants it.
type DescriptorBudget interface {
	// Admit reports whether n more descriptors fit in the table.
	Admit(n int) bool
}

// ProcessBudget measures the live descriptor table against
// RLIMIT_NOFILE.
type ProcessBudget struct {
	// Reserve is headroom kept free for the caller's own use, such as
	// accepting connections and opening files while handling messages.
	Reserve int
}

// Admit counts /proc/self/fd and compares against the soft
// RLIMIT_NOFILE. If either measurement fails it admits, leaving the
// kernel to report EMFILE.
func (budget ProcessBudget) Admit(n int) bool {
	open, err := openDescriptorCount()
	if err != nil {
		return true
	}
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return true
	}
	return uint64(open+budget.Reserve+n) < limit.Cur
}

// openDescriptorCount returns the number of open descriptors, not
// counting the one used to list them.
func openDescriptorCount() (int, error) {
	directory, err := os.Open("/proc/self/fd")
	if err != nil {
		return 0, err
	}
	defer directory.Close()
	names, err := directory.Readdirnames(-1)
	if err != nil {
		return 0, err
	}
	return len(names) - 1, nil
}
