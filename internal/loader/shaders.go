package loader

import (
	"context"
	"errors"
	"strings"

	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/scene"
)

// How a shader descriptor was resolved.
const (
	ViaExact      = "exact"
	ViaFallback   = "fallback"
	ViaDefault    = "default"
	ViaUnresolved = "unresolved"
)

var errResolutionMiss = errors.New("resolution miss")

// ShaderCandidates lists the names tried for a graph-variant shader, in
// order.
func ShaderCandidates(original string) []string {
	leaf := original
	if i := strings.LastIndex(original, "/"); i >= 0 {
		leaf = original[i+1:]
	}
	return []string{
		original,
		"Shader Graphs/" + leaf,
		leaf,
		"Hidden/" + original,
	}
}

// resolveShader maps a descriptor to a host shader and caches it under the
// original name. Only graph variants walk the candidate list; anything
// still unresolved gets the default shader when there is one.
func (s *Session) resolveShader(ctx context.Context, logger log.Logger, d manifest.ShaderDescriptor) ShaderResolution {
	r := ShaderResolution{Original: d.OriginalName}
	sh := s.lib.Find(d.OriginalName)
	r.Via = ViaExact
	if sh == nil && d.IsShaderGraph {
		for _, name := range ShaderCandidates(d.OriginalName) {
			if sh = s.lib.Find(name); sh != nil {
				r.Via = ViaFallback
				logger.Info(ctx, "found shader graph under alternate name", "shader", d.OriginalName, "name", name)
				break
			}
		}
	}
	if sh == nil {
		logger.Warn(ctx, "could not load shader, using default", "shader", d.OriginalName, "err", errResolutionMiss)
		sh, r.Via = s.defaultShader, ViaDefault
	} else if r.Via == ViaExact {
		logger.Debug(ctx, "loaded shader", "shader", d.OriginalName)
	}
	if sh == nil {
		r.Via = ViaUnresolved
		return r
	}
	r.Resolved = sh.Name
	s.shaders[d.OriginalName] = sh
	if s.metrics != nil {
		s.metrics.ShaderResolved(r.Via)
	}
	return r
}

// cacheProperties keeps the first snapshot seen for a shader name.
func (s *Session) cacheProperties(ctx context.Context, logger log.Logger, modDir string, d manifest.ShaderDescriptor) {
	if _, ok := s.properties[d.OriginalName]; ok {
		return
	}
	snap, err := manifest.ReadProperties(modDir, d.ShaderName)
	if err != nil {
		if !errors.Is(err, manifest.ErrAssetMissing) {
			logger.Warn(ctx, "property snapshot unreadable", "shader", d.OriginalName, "err", err)
		}
		return
	}
	s.properties[d.OriginalName] = snap
}

// applyShaders swaps the resolved shader into every material whose shader
// name matches a cached entry, then replays the captured properties.
func (s *Session) applyShaders(ctx context.Context, logger log.Logger, root *scene.Node) {
	if len(s.shaders) == 0 {
		return
	}
	for _, n := range scene.Renderers(root) {
		for _, m := range n.Renderer.Materials {
			if m == nil {
				continue
			}
			name := m.ShaderName()
			sh, ok := s.shaders[name]
			if !ok {
				continue
			}
			m.Shader = sh
			logger.Debug(ctx, "applied shader", "shader", name, "material", m.Name)
			if snap, ok := s.properties[name]; ok {
				applyProperties(m, snap)
				logger.Debug(ctx, "applied material properties", "material", m.Name, "count", len(snap.Properties))
			}
		}
	}
}

// applyProperties writes every well-formed value. Texture entries carry
// only placement; the texture itself is not shipped.
func applyProperties(m *scene.Material, snap manifest.MaterialPropertySnapshot) {
	for _, p := range snap.Properties {
		switch p.Type {
		case manifest.PropertyColor:
			if v, ok := manifest.Vec4(p.ColorValue); ok {
				m.SetColor(p.Name, v)
			}
		case manifest.PropertyVector:
			if v, ok := manifest.Vec4(p.VectorValue); ok {
				m.SetVector(p.Name, v)
			}
		case manifest.PropertyFloat, manifest.PropertyRange:
			m.SetFloat(p.Name, p.FloatValue)
		case manifest.PropertyTexture:
			if v, ok := manifest.Vec2(p.TextureOffset); ok {
				m.SetTextureOffset(p.Name, v)
			}
			if v, ok := manifest.Vec2(p.TextureScale); ok {
				m.SetTextureScale(p.Name, v)
			}
		}
	}
}
