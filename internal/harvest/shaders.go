package harvest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// Shaders copies every distinct custom program used by a material in the
// content roots into Shaders/ and writes shader_data.json. Engine programs
// are skipped. Graph variants also get a property snapshot taken from the
// first material seen using them.
func (h *Harvester) Shaders(ctx context.Context, modDir string) (manifest.ShaderManifest, error) {
	var order []*scene.Shader
	firstMat := map[*scene.Shader]*scene.Material{}
	h.each(func(n *scene.Node) {
		if n.Renderer == nil {
			return
		}
		for _, m := range n.Renderer.Materials {
			if m == nil || m.Shader == nil {
				continue
			}
			if _, ok := firstMat[m.Shader]; !ok {
				firstMat[m.Shader] = m
				order = append(order, m.Shader)
			}
		}
	})
	if len(order) == 0 {
		h.logger.Info(ctx, "no custom shaders found in scene")
		return manifest.ShaderManifest{}, nil
	}

	dir := filepath.Join(modDir, manifest.ShadersDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return manifest.ShaderManifest{}, xerrors.Wrapf(err, "create %s", dir)
	}

	var m manifest.ShaderManifest
	for _, sh := range order {
		if sh.Builtin() {
			h.logger.Debug(ctx, "skipping built-in shader", "shader", sh.Name)
			continue
		}
		ok, err := exists(sh.AssetPath)
		if err != nil {
			return manifest.ShaderManifest{}, err
		}
		if !ok {
			h.missing(ctx, "shader", sh.Name, sh.AssetPath)
			continue
		}

		graph := sh.IsGraph()
		ext := manifest.ShaderExt
		if graph {
			ext = manifest.ShaderGraphExt
		}
		file := strings.ReplaceAll(sh.Name, "/", "_") + ext
		if err := copyFile(sh.AssetPath, filepath.Join(dir, file)); err != nil {
			return manifest.ShaderManifest{}, err
		}
		d := manifest.ShaderDescriptor{ShaderName: file, OriginalName: sh.Name, IsShaderGraph: graph}
		if graph {
			d.ShaderGraphPath = sh.AssetPath
		}
		m.Shaders = append(m.Shaders, d)
		h.logger.Debug(ctx, "saved shader", "shader", sh.Name, "graph", graph)

		if graph {
			snap := snapshotProperties(firstMat[sh])
			if err := manifest.WriteProperties(modDir, file, snap); err != nil {
				return manifest.ShaderManifest{}, err
			}
			h.report.Snapshots = append(h.report.Snapshots, manifest.PropertiesFileName(file))
		}
	}

	if len(m.Shaders) == 0 {
		return m, nil
	}
	if err := m.Validate(); err != nil {
		return manifest.ShaderManifest{}, err
	}
	if err := manifest.WriteShaders(modDir, m); err != nil {
		return manifest.ShaderManifest{}, err
	}
	h.report.Shaders = m.Shaders
	return m, nil
}

// snapshotProperties reads every declared property of the material's
// program. Unset values read as the zero value; an unbound texture slot is
// recorded with its name and type only.
func snapshotProperties(mat *scene.Material) manifest.MaterialPropertySnapshot {
	snap := manifest.MaterialPropertySnapshot{
		MaterialName: mat.Name,
		ShaderName:   mat.ShaderName(),
		Properties:   []manifest.PropertyValue{},
	}
	for _, p := range mat.Shader.Properties {
		var v manifest.PropertyValue
		switch p.Kind {
		case scene.KindColor:
			v = manifest.ColorValue(p.Name, mat.Colors[p.Name])
		case scene.KindVector:
			v = manifest.VectorValue(p.Name, mat.Vectors[p.Name])
		case scene.KindFloat:
			v = manifest.FloatValue(p.Name, mat.Floats[p.Name])
		case scene.KindRange:
			v = manifest.RangeValue(p.Name, mat.Floats[p.Name])
		case scene.KindTexture:
			slot, ok := mat.Textures[p.Name]
			if ok && slot.Texture != "" {
				v = manifest.TextureValue(p.Name, slot.Texture, slot.Offset, slot.Scale)
			} else {
				v = manifest.PropertyValue{Name: p.Name, Type: manifest.PropertyTexture}
			}
		default:
			v = manifest.PropertyValue{Name: p.Name, Type: manifest.PropertyType(p.Kind)}
		}
		snap.Properties = append(snap.Properties, v)
	}
	return snap
}
