package version_test

import (
	"testing"

	v "github.com/keithlinneman/tmodkit/internal/version"
)

func TestVCSDirtyTriState(t *testing.T) {
	v.VCSDirty = nil
	info := v.Get()
	if info.VCSDirty != nil {
		t.Fatalf("VCSDirty = %v, want nil", info.VCSDirty)
	}

	trueVal := true
	v.VCSDirty = &trueVal
	info = v.Get()
	if info.VCSDirty == nil || *info.VCSDirty != true {
		t.Fatalf("VCSDirty = %v, want true", info.VCSDirty)
	}

	falseVal := false
	v.VCSDirty = &falseVal
	info = v.Get()
	if info.VCSDirty == nil || *info.VCSDirty != false {
		t.Fatalf("VCSDirty = %v, want false", info.VCSDirty)
	}
}

func TestGet_App(t *testing.T) {
	if got := v.Get().App; got != v.AppName {
		t.Fatalf("App = %q, want %q", got, v.AppName)
	}
}

func TestInfo_String(t *testing.T) {
	dirty := true
	i := v.Info{App: "tmodkit", Version: "1.2.0", Commit: "abc123", GoVersion: "go1.24", VCSDirty: &dirty}
	want := "tmodkit 1.2.0 (commit=abc123, commit_date=, build_id=, build_date=, go=go1.24, dirty=true)"
	if got := i.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestInfo_Stamp(t *testing.T) {
	dirty, clean := true, false
	for _, tc := range []struct {
		name string
		in   v.Info
		want string
	}{
		{"release", v.Info{App: "tmodkit", Version: "1.2.0", Commit: "abc1234def5678", VCSDirty: &clean}, "tmodkit/1.2.0+abc1234"},
		{"dirty tree", v.Info{App: "tmodkit", Version: "1.2.0", Commit: "abc1234def5678", VCSDirty: &dirty}, "tmodkit/1.2.0+abc1234.dirty"},
		{"no vcs", v.Info{App: "tmodkit", Version: "dev", Commit: "none"}, "tmodkit/dev"},
		{"short commit", v.Info{App: "tmodkit", Version: "dev", Commit: "abc"}, "tmodkit/dev+abc"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Stamp(); got != tc.want {
				t.Fatalf("Stamp() = %q, want %q", got, tc.want)
			}
		})
	}
}
