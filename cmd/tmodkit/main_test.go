package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const arenaDoc = `
name: arena
types:
  - name: Mods.Spinner
    script: Spinner.cs
roots:
  - name: ModDescriptor
    descriptor: true
  - name: Arena
    components: [Mods.Spinner]
    children:
      - name: Floor
`

const spinnerSrc = `using UnityEngine;
public class Spinner : MonoBehaviour {
    void Update() { transform.Rotate(0, 1, 0); }
}
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildThenLoad(t *testing.T) {
	src := t.TempDir()
	work := t.TempDir()
	doc := filepath.Join(src, "arena.yaml")
	writeFile(t, doc, arenaDoc)
	writeFile(t, filepath.Join(src, "Spinner.cs"), spinnerSrc)

	// cli beats env
	t.Setenv("TMODKIT_MOD_NAME", "FromEnv")

	out, err := run(t, "build", doc, "--work-dir", work, "--mod-name", "Arena", "--log-level", "error")
	if err != nil {
		t.Fatalf("build: %v\n%s", err, out)
	}
	modPath := filepath.Join(work, "Mods", "Arena.tmod")
	if !strings.Contains(out, modPath) {
		t.Fatalf("build output = %q, want %s", out, modPath)
	}
	if _, err := os.Stat(modPath); err != nil {
		t.Fatalf("container missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(work, "Mods", "FromEnv.tmod")); !os.IsNotExist(err) {
		t.Fatalf("env value overrode the flag: %v", err)
	}

	out, err = run(t, "load", "--work-dir", work, "--frame-rate", "0", "--log-level", "error")
	if err != nil {
		t.Fatalf("load: %v\n%s", err, out)
	}
	var row string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Arena") {
			row = line
		}
	}
	if !strings.Contains(row, "loaded") {
		t.Fatalf("load output missing Arena row:\n%s", out)
	}
}

func TestBuildRequiresModName(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "arena.yaml")
	writeFile(t, doc, arenaDoc)
	_, err := run(t, "build", doc, "--work-dir", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "MOD_NAME is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestInvalidConfigFromEnv(t *testing.T) {
	t.Setenv("TMODKIT_TRACE_SAMPLE", "5")
	_, err := run(t, "version")
	if err == nil || !strings.Contains(err.Error(), "TRACE_SAMPLE") {
		t.Fatalf("err = %v", err)
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Spinner.cs"), spinnerSrc)
	writeFile(t, filepath.Join(dir, "Evil.cs"), "using System.IO;\nclass Evil { void A() { File.Delete(\"x\"); } }\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "using System.IO;")

	out, err := run(t, "scan", dir, "--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "1 of 2 scripts") {
		t.Fatalf("err = %v\n%s", err, out)
	}
	if !strings.Contains(out, "REJECT  "+filepath.Join(dir, "Evil.cs")) {
		t.Fatalf("output = %s", out)
	}
	if strings.Contains(out, "notes.txt") {
		t.Fatalf("non-script file scanned:\n%s", out)
	}

	if out, err := run(t, "scan", filepath.Join(dir, "Spinner.cs"), "--log-level", "error"); err != nil {
		t.Fatalf("clean scan: %v\n%s", err, out)
	}
}

func TestFetchNeedsRemoteConfig(t *testing.T) {
	_, err := run(t, "fetch", "Arena", "--log-level", "error")
	if err == nil || !strings.Contains(err.Error(), "SSM_PARAM is required") {
		t.Fatalf("err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "tmodkit ") {
		t.Fatalf("output = %q", out)
	}

	out, err = run(t, "version", "--json")
	if err != nil {
		t.Fatalf("version --json: %v", err)
	}
	if !strings.Contains(out, `"app": "tmodkit"`) {
		t.Fatalf("json output = %q", out)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "tmodkit.toml")
	writeFile(t, conf, "log-level = \"error\"\nmod-name = \"Arena\"\ntrace-sample = 3.0\n")

	_, err := run(t, "version", "--config", conf)
	if err == nil || !strings.Contains(err.Error(), "TRACE_SAMPLE") {
		t.Fatalf("file values should be validated, err = %v", err)
	}

	// flags win over the file
	if out, err := run(t, "version", "--config", conf, "--trace-sample", "0.5"); err != nil {
		t.Fatalf("version: %v\n%s", err, out)
	}

	writeFile(t, conf, "unknown-key = 1\n")
	if _, err := run(t, "version", "--config", conf); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("err = %v", err)
	}
}
