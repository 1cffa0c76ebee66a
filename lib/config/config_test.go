// Copyright 2026 The Snare Authors
// SPDX-License-Identifier: Apache-2.0

package config

import "testing"

func TestParseMinimal(t *testing.T) {
	t.Parallel()
	src := `
listen = "127.0.0.1:8080";
maxjobs = 4;
github {
  match "myorg/.*" {
    cmd = "echo %o/%r";
    queue = sequential;
    timeout = 30;
  }
}
`
	cfg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q, want 127.0.0.1:8080", cfg.Listen)
	}
	if cfg.MaxJobs != 4 {
		t.Errorf("MaxJobs = %d, want 4", cfg.MaxJobs)
	}
	// synthetic default rule is prepended
	if len(cfg.Rules) != 2 {
		t.Fatalf("len(Rules) = %d, want 2", len(cfg.Rules))
	}
	if cfg.Rules[0].Source != ".*" {
		t.Errorf("Rules[0].Source = %q, want .*", cfg.Rules[0].Source)
	}

	settings, ok := cfg.Resolve("myorg/widget")
	if !ok {
		t.Fatal("Resolve: expected ok=true")
	}
	if settings.Cmd != "echo %o/%r" {
		t.Errorf("Cmd = %q", settings.Cmd)
	}
	if settings.Queue != Sequential {
		t.Errorf("Queue = %v, want Sequential", settings.Queue)
	}
	if settings.Timeout != 30 {
		t.Errorf("Timeout = %d, want 30", settings.Timeout)
	}
}

func TestResolveUnmatchedRepoUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(`
listen = "127.0.0.1:8080";
maxjobs = 1;
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	settings, ok := cfg.Resolve("someorg/somerepo")
	if ok {
		t.Fatal("Resolve: expected ok=false when no rule supplies cmd")
	}
	if settings.Queue != Sequential {
		t.Errorf("Queue = %v, want Sequential default", settings.Queue)
	}
	if settings.Timeout != DefaultTimeoutSeconds {
		t.Errorf("Timeout = %d, want default %d", settings.Timeout, DefaultTimeoutSeconds)
	}
}

func TestParseRejectsUnknownEscape(t *testing.T) {
	t.Parallel()
	_, err := Parse(`
listen = "127.0.0.1:8080";
maxjobs = 1;
github {
  match ".*" {
    cmd = "echo %q";
  }
}
`)
	if err == nil {
		msg := "Parse: expected error for unrecognised escape %q"
		t.Fatal(msg)
	}
}

func TestParseRejectsMissingListen(t *testing.T) {
	t.Parallel()
	_, err := Parse(`maxjobs = 1;`)
	if err == nil {
		t.Fatal("Parse: expected error for missing listen")
	}
}

func TestSerializeRoundTrips(t *testing.T) {
	t.Parallel()
	src := `
listen = "127.0.0.1:8080";
maxjobs = 4;
user = "snare";
github {
  match "myorg/.*" {
    cmd = "echo %o/%r \"quoted\"\nline two";
    errorcmd = "notify %x:%?";
    queue = parallel;
    secret = "s3cr3t";
    timeout = 30;
  }
  match "myorg/evict-me" {
    queue = evict;
  }
}
`
	cfg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	roundTripped, err := Parse(cfg.Serialize())
	if err != nil {
		t.Fatalf("Parse(Serialize()): %v", err)
	}

	if roundTripped.Listen != cfg.Listen {
		t.Errorf("Listen = %q, want %q", roundTripped.Listen, cfg.Listen)
	}
	if roundTripped.MaxJobs != cfg.MaxJobs {
		t.Errorf("MaxJobs = %d, want %d", roundTripped.MaxJobs, cfg.MaxJobs)
	}
	if roundTripped.User != cfg.User {
		t.Errorf("User = %q, want %q", roundTripped.User, cfg.User)
	}
	if len(roundTripped.Rules) != len(cfg.Rules) {
		t.Fatalf("len(Rules) = %d, want %d", len(roundTripped.Rules), len(cfg.Rules))
	}

	for _, key := range []string{"myorg/widget", "myorg/evict-me", "otherorg/x"} {
		want, wantOK := cfg.Resolve(key)
		got, gotOK := roundTripped.Resolve(key)
		if gotOK != wantOK || got != want {
			t.Errorf("Resolve(%q) = %+v, %v; want %+v, %v", key, got, gotOK, want, wantOK)
		}
	}
}

func TestSerializeOmitsSyntheticDefaultRule(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(`
listen = "127.0.0.1:8080";
maxjobs = 1;
github {
  match "a/b" {
    cmd = "true";
  }
}
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	out := cfg.Serialize()
	roundTripped, err := Parse(out)
	if err != nil {
		t.Fatalf("Parse(Serialize()): %v", err)
	}
	// Serialize must not emit the synthetic ".*" default rule a second
	// time; Parse re-prepends exactly one, so the count must match.
	if len(roundTripped.Rules) != len(cfg.Rules) {
		t.Fatalf("len(Rules) = %d, want %d (synthetic rule duplicated?)", len(roundTripped.Rules), len(cfg.Rules))
	}
}

func TestParseOverlayOrdering(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(`
listen = "127.0.0.1:8080";
maxjobs = 1;
github {
  match "a/.*" {
    cmd = "first";
    timeout = 10;
  }
  match "a/b" {
    timeout = 20;
  }
}
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	settings, ok := cfg.Resolve("a/b")
	if !ok {
		t.Fatal("Resolve: expected ok=true")
	}
	if settings.Cmd != "first" {
		t.Errorf("Cmd = %q, want unchanged from first rule", settings.Cmd)
	}
	if settings.Timeout != 20 {
		t.Errorf("Timeout = %d, want 20 (later rule wins)", settings.Timeout)
	}
}
