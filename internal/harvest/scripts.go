package harvest

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/scanner"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

type scriptSource struct {
	className string
	path      string
	text      string
}

// Scripts copies every distinct script behind a component in the content
// roots into Scripts/ and writes script_data.json. Excluded types and
// scripts that fail the scanner are logged and skipped; nothing is written
// when no script survives.
func (h *Harvester) Scripts(ctx context.Context, modDir string) (manifest.ScriptManifest, error) {
	var kept []scriptSource
	seenType := map[string]bool{}
	seenFile := map[string]bool{}

	for _, r := range h.scene.ContentRoots() {
		for _, c := range componentsUnder(r) {
			if seenType[c] {
				continue
			}
			seenType[c] = true

			t, ok := h.types.Lookup(c)
			if !ok || t.ScriptPath == "" {
				h.logger.Debug(ctx, "component has no script source", "type", c)
				continue
			}
			if t.SandboxExcluded {
				h.report.Excluded = append(h.report.Excluded, c)
				h.logger.Info(ctx, "script is sandbox-excluded, skipping", "type", c)
				continue
			}
			if seenFile[t.ScriptPath] {
				continue
			}
			seenFile[t.ScriptPath] = true

			raw, err := os.ReadFile(t.ScriptPath)
			if err != nil {
				if os.IsNotExist(err) {
					h.missing(ctx, "script", c, t.ScriptPath)
					continue
				}
				return manifest.ScriptManifest{}, xerrors.Wrapf(err, "read script for %s", c)
			}
			res := h.checker.Check(string(raw))
			if !res.Safe {
				name := scriptFileName(t.ScriptPath)
				scanner.LogViolations(ctx, h.logger, name, res.Violations)
				h.report.Rejected = append(h.report.Rejected, Rejection{Type: c, Script: name, Violations: res.Violations})
				if h.metrics != nil {
					h.metrics.ScriptRejected()
				}
				continue
			}
			kept = append(kept, scriptSource{className: c, path: t.ScriptPath, text: string(raw)})
		}
	}

	if len(kept) == 0 {
		h.logger.Info(ctx, "no scripts found in scene")
		return manifest.ScriptManifest{}, nil
	}

	dir := filepath.Join(modDir, manifest.ScriptsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return manifest.ScriptManifest{}, xerrors.Wrapf(err, "create %s", dir)
	}
	var m manifest.ScriptManifest
	used := map[string]bool{}
	for _, s := range kept {
		name := uniqueScriptName(scriptFileName(s.path), used)
		if name != scriptFileName(s.path) {
			h.logger.Warn(ctx, "script file name already taken, renamed", "source", s.path, "script", name, "class", s.className)
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(s.text), 0o644); err != nil {
			return manifest.ScriptManifest{}, xerrors.Wrapf(err, "write script %s", name)
		}
		m.Scripts = append(m.Scripts, manifest.ScriptDescriptor{ScriptName: name, ClassName: s.className})
		h.logger.Debug(ctx, "saved script", "script", name, "class", s.className)
	}
	if err := m.Validate(); err != nil {
		return manifest.ScriptManifest{}, err
	}
	if err := manifest.WriteScripts(modDir, m); err != nil {
		return manifest.ScriptManifest{}, err
	}
	h.report.Scripts = m.Scripts
	return m, nil
}

// componentsUnder lists component type names under root in walk order
func componentsUnder(root *scene.Node) []string {
	var out []string
	root.Walk(func(n *scene.Node) {
		for _, c := range n.Components() {
			out = append(out, c.TypeName)
		}
	})
	return out
}

func scriptFileName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + manifest.ScriptExt
}

// uniqueScriptName returns name, or name with a _N suffix when a script
// from another folder already claimed it. The result is marked used.
func uniqueScriptName(name string, used map[string]bool) string {
	out := name
	stem := strings.TrimSuffix(name, manifest.ScriptExt)
	for i := 2; used[out]; i++ {
		out = stem + "_" + strconv.Itoa(i) + manifest.ScriptExt
	}
	used[out] = true
	return out
}
