package harvest

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// Lightmaps encodes the scene's lightmap pairs as PNG under Lightmaps/ and
// records a binding for every mesh renderer under the content roots that
// uses a lightmap slot.
func (h *Harvester) Lightmaps(ctx context.Context, modDir string) (manifest.LightmapManifest, error) {
	lms := h.scene.Lightmaps
	if len(lms) == 0 {
		h.logger.Info(ctx, "no lightmaps to save")
		return manifest.LightmapManifest{}, nil
	}
	dir := filepath.Join(modDir, manifest.LightmapsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return manifest.LightmapManifest{}, xerrors.Wrapf(err, "create %s", dir)
	}

	m := manifest.LightmapManifest{Renderers: []manifest.LightmapNodeBinding{}}
	for i, lm := range lms {
		entry := manifest.LightmapEntry{Index: i}
		colorName, dirName := manifest.LightmapImageNames(i)
		if lm.Color != nil {
			if err := writePNG(filepath.Join(dir, colorName), lm.Color); err != nil {
				return manifest.LightmapManifest{}, err
			}
			entry.ColorPath = colorName
		}
		if lm.Dir != nil {
			if err := writePNG(filepath.Join(dir, dirName), lm.Dir); err != nil {
				return manifest.LightmapManifest{}, err
			}
			entry.DirPath = dirName
		}
		m.Lightmaps = append(m.Lightmaps, entry)
	}

	h.each(func(n *scene.Node) {
		r := n.Renderer
		if r == nil || !r.Mesh || r.LightmapIndex < 0 {
			return
		}
		m.Renderers = append(m.Renderers, manifest.LightmapNodeBinding{
			ObjectPath:          n.Path(),
			LightmapIndex:       r.LightmapIndex,
			LightmapScaleOffset: r.LightmapScaleOffset,
		})
	})

	if err := manifest.WriteLightmaps(modDir, m); err != nil {
		return manifest.LightmapManifest{}, err
	}
	h.report.Lightmaps = m.Lightmaps
	h.report.Bindings = m.Renderers
	return m, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return xerrors.Wrapf(err, "create %s", path)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return xerrors.Wrapf(err, "encode %s", path)
	}
	return xerrors.WithStack(f.Close())
}
