// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package substitute

import "testing"

func TestValidateCmdRejectsUnknownEscape(t *testing.T) {
	t.Parallel()
	if err := ValidateCmd("echo %s"); err == nil {
		msg := "ValidateCmd: expected error for %s (errorcmd-only escape)"
		t.Fatal(msg)
	}
	if err := ValidateCmd("echo %e %j %o %r %%"); err != nil {
		t.Fatalf("ValidateCmd: unexpected error: %v", err)
	}
}

func TestValidateErrorCmdAcceptsAllEscapes(t *testing.T) {
	t.Parallel()
	if err := ValidateErrorCmd("echo %e %j %o %r %% %s %x %?"); err != nil {
		t.Fatalf("ValidateErrorCmd: unexpected error: %v", err)
	}
}

func TestCmdExpansion(t *testing.T) {
	t.Parallel()
	got := Cmd("deploy.sh %o %r %e %%done", CmdVars{
		Event:       "push",
		PayloadPath: "/tmp/payload.json",
		Owner:       "acme",
		Repo:        "widget",
	})
	want := "deploy.sh acme widget push %done"
	if got != want {
		t.Errorf("Cmd() = %q, want %q", got, want)
	}
}

func TestErrorCmdExpansion(t *testing.T) {
	t.Parallel()
	got := ErrorCmd("notify %x %? %s", ErrorCmdVars{
		CmdVars:     CmdVars{Owner: "acme", Repo: "widget"},
		CapturePath: "/tmp/capture.log",
		Kind:        "signal",
		Code:        "15",
	})
	want := "notify signal 15 /tmp/capture.log"
	if got != want {
		t.Errorf("ErrorCmd() = %q, want %q", got, want)
	}
}

func TestTrailingPercentIsLiteral(t *testing.T) {
	t.Parallel()
	got := Cmd("echo done%", CmdVars{})
	if got != "echo done%" {
		t.Errorf("Cmd() = %q, want echo done%%", got)
	}
}
