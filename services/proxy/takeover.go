// Copyright (C) 2025 Sentinel AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package proxy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// tcpListenState is the kernel state code for LISTEN in /proc/net/tcp.
const tcpListenState = "0A"

// FreePort terminates whatever process is listening on the port so the
// proxy can bind it. Best effort: errors are logged and swallowed, since
// a stale holder that ignores SIGTERM will surface as a bind failure
// right after anyway. Linux only.
func FreePort(port int) {
	inodes := listenerInodes(port)
	if len(inodes) == 0 {
		return
	}
	for _, pid := range pidsHoldingInodes(inodes) {
		if pid == os.Getpid() {
			continue
		}
		if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
			slog.Warn("Failed to terminate port holder", "pid", pid, "port", port, "error", err)
			continue
		}
		slog.Info("Terminated process holding listen port", "pid", pid, "port", port)
	}
}

// listenerInodes collects socket inodes listening on the port.
func listenerInodes(port int) map[string]bool {
	inodes := map[string]bool{}
	hexPort := fmt.Sprintf("%04X", port)
	for _, table := range []string{"/proc/net/tcp", "/proc/net/tcp6"} {
		data, err := os.ReadFile(table)
		if err != nil {
			continue
		}
		for _, line := range strings.Split(string(data), "\n")[1:] {
			fields := strings.Fields(line)
			// sl local_address rem_address st ... inode
			if len(fields) < 10 || fields[3] != tcpListenState {
				continue
			}
			if !strings.HasSuffix(fields[1], ":"+hexPort) {
				continue
			}
			inodes[fields[9]] = true
		}
	}
	return inodes
}

// pidsHoldingInodes scans /proc/*/fd for sockets matching the inodes.
func pidsHoldingInodes(inodes map[string]bool) []int {
	var pids []int
	procs, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	for _, proc := range procs {
		pid, err := strconv.Atoi(proc.Name())
		if err != nil {
			continue
		}
		fdDir := filepath.Join("/proc", proc.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if !strings.HasPrefix(link, "socket:[") {
				continue
			}
			inode := strings.TrimSuffix(strings.TrimPrefix(link, "socket:["), "]")
			if inodes[inode] {
				pids = append(pids, pid)
				break
			}
		}
	}
	return pids
}
