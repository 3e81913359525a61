package xerrors

import (
	"errors"
	"runtime"
	"strings"
	"testing"
)

var errMissing = errors.New("asset missing")

func stackContains(pcs []uintptr, substr string) bool {
	frames := runtime.CallersFrames(pcs)
	for {
		fr, more := frames.Next()
		if strings.Contains(fr.Function, substr) {
			return true
		}
		if !more {
			break
		}
	}
	return false
}

func TestNew_CapturesCaller(t *testing.T) {
	err := New("extract failed")
	if err.Error() != "extract failed" {
		t.Fatalf("Error() = %q", err.Error())
	}

	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatal("New error should carry a stack")
	}
	if !stackContains(hs.StackPCs(), "TestNew_CapturesCaller") {
		t.Fatal("stack should contain the calling test")
	}
}

func TestNewf_FormatsAndWraps(t *testing.T) {
	err := Newf("shader %s: %w", "Custom/Foo", errMissing)
	if err.Error() != "shader Custom/Foo: asset missing" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errMissing) {
		t.Fatal("Newf should honor %w")
	}
}

func TestWrap_NilPassthrough(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Fatal("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Fatal("Wrapf(nil) should be nil")
	}
	if WithStack(nil) != nil {
		t.Fatal("WithStack(nil) should be nil")
	}
	if EnsureTrace(nil) != nil {
		t.Fatal("EnsureTrace(nil) should be nil")
	}
	if Mark(nil, errMissing) != nil {
		t.Fatal("Mark(nil) should be nil")
	}
}

func TestWrap_MessageAndPC(t *testing.T) {
	err := Wrapf(errMissing, "read %s", "shader_data.json")
	if err.Error() != "read shader_data.json: asset missing" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errMissing) {
		t.Fatal("Wrapf should unwrap to the cause")
	}

	var hp interface{ PC() uintptr }
	if !errors.As(err, &hp) || hp.PC() == 0 {
		t.Fatal("Wrapf should record a caller PC")
	}
	fr, _ := runtime.CallersFrames([]uintptr{hp.PC()}).Next()
	if !strings.Contains(fr.Function, "TestWrap_MessageAndPC") {
		t.Fatalf("PC resolves to %s, want the test function", fr.Function)
	}
}

func TestChainedWrap(t *testing.T) {
	err := Wrap(Wrap(errMissing, "stage shaders"), "package mod1")
	if err.Error() != "package mod1: stage shaders: asset missing" {
		t.Fatalf("Error() = %q", err.Error())
	}
	if !errors.Is(err, errMissing) {
		t.Fatal("chain should reach the sentinel")
	}
}

func TestEnsureTrace_Idempotent(t *testing.T) {
	plain := errors.New("plain")
	once := EnsureTrace(plain)
	if once == plain {
		t.Fatal("EnsureTrace should add a stack to a plain error")
	}
	if twice := EnsureTrace(once); twice != once {
		t.Fatal("EnsureTrace should not double-wrap")
	}
	if !errors.Is(once, plain) {
		t.Fatal("EnsureTrace should preserve unwrap")
	}
}

func TestMark(t *testing.T) {
	errScan := errors.New("scan violation")
	base := Newf("script %s rejected", "Spinner.cs")

	err := Mark(base, errScan)
	if err.Error() != base.Error() {
		t.Fatalf("Mark changed message: %q", err.Error())
	}
	if !errors.Is(err, errScan) {
		t.Fatal("marked error should match its kind")
	}

	var hs interface{ StackPCs() []uintptr }
	if !errors.As(err, &hs) {
		t.Fatal("marked error should still expose the original stack")
	}

	if again := Mark(err, errScan); again != err {
		t.Fatal("re-marking with the same kind should be a no-op")
	}
	if Mark(base, nil) != base {
		t.Fatal("nil kind should return err unchanged")
	}
}
