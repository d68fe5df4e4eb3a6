package version

import (
	"runtime/debug"
	"testing"
)

func TestResolveFromBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "v0.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	info := resolve(bi)
	if info.Version != "v0.4.0" || info.BuildTime != "2026-10-01T12:00:00Z" || info.GoVersion != "go1.26.0" {
		t.Fatalf("unexpected info %+v", info)
	}
	if got, want := info.String(), "v0.4.0 (0123456789ab+)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestDevelBuild(t *testing.T) {
	info := resolve(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	if info.Version != "devel" || info.String() != "devel" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.GoVersion == "" {
		t.Fatal("runtime Go version not filled in")
	}
}

func TestShortCommit(t *testing.T) {
	t.Parallel()
	if got := shortCommit("abc"); got != "abc" {
		t.Fatalf("shortCommit(abc) = %q", got)
	}
	if got := shortCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortCommit = %q", got)
	}
}
