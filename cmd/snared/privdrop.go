// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

type droppedUser struct {
	name string
	home string
	uid  int
	gid  int
}

// dropPrivileges looks up userName, sets supplementary groups to just
// that user's primary group, then sets real/effective/saved gid and
// uid in that order (gid before uid, since changing uid first would
// strip the permission needed to change gid), sets the HOME and USER
// environment variables to the dropped-to user's, and finally chdirs
// to / so the daemon never holds a working directory the dropped-to
// user cannot read. Refuses to proceed if userName resolves to uid 0.
func dropPrivileges(userName string) (droppedUser, error) {
	u, err := user.Lookup(userName)
	if err != nil {
		return droppedUser{}, fmt.Errorf("looking up user %q: %w", userName, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return droppedUser{}, fmt.Errorf("parsing uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return droppedUser{}, fmt.Errorf("parsing gid %q: %w", u.Gid, err)
	}
	if uid == 0 {
		return droppedUser{}, fmt.Errorf("refusing to drop privileges to uid 0")
	}

	if err := unix.Setgroups([]int{gid}); err != nil {
		return droppedUser{}, fmt.Errorf("setgroups: %w", err)
	}
	if err := unix.Setresgid(gid, gid, gid); err != nil {
		return droppedUser{}, fmt.Errorf("setresgid: %w", err)
	}
	if err := unix.Setresuid(uid, uid, uid); err != nil {
		return droppedUser{}, fmt.Errorf("setresuid: %w", err)
	}
	if err := os.Setenv("HOME", u.HomeDir); err != nil {
		return droppedUser{}, fmt.Errorf("setting HOME: %w", err)
	}
	if err := os.Setenv("USER", u.Username); err != nil {
		return droppedUser{}, fmt.Errorf("setting USER: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return droppedUser{}, fmt.Errorf("chdir /: %w", err)
	}

	return droppedUser{name: u.Username, home: u.HomeDir, uid: uid, gid: gid}, nil
}
