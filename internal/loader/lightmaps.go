package loader

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/keithlinneman/tmodkit/internal/log"
	"github.com/keithlinneman/tmodkit/internal/manifest"
	"github.com/keithlinneman/tmodkit/internal/pathutil"
	"github.com/keithlinneman/tmodkit/internal/scene"
	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

// Lightmap binding outcomes.
const (
	BindExact      = "exact"
	BindNameSearch = "name_search"
	BindMissing    = "missing"
)

const (
	colorSuffix = "_color.png"
	dirSuffix   = "_dir.png"

	// upper bound on lightmap slots per package; the index sizes the array
	maxLightmaps = 1024
)

// resolveBinding finds the node a binding path points at. The original
// root name is stripped and the rest is followed from the container and
// from each loaded root; failing that, the leaf name is matched against
// every mesh renderer.
func resolveBinding(container *scene.Node, objectPath string) (*scene.Node, string) {
	rel := manifest.StripRoot(objectPath)
	if n := container.FindPath(rel); n != nil {
		return n, BindExact
	}
	for _, r := range container.Children() {
		if n := r.FindPath(rel); n != nil {
			return n, BindExact
		}
	}
	leaf := manifest.Leaf(objectPath)
	for _, n := range scene.Renderers(container) {
		if n.Renderer.Mesh && n.Name == leaf {
			return n, BindNameSearch
		}
	}
	return nil, BindMissing
}

// decodeLightmaps rebuilds the lightmap array. Entries place each pair at
// its index; packages without entries fall back to every *_color.png in
// name order with its _dir.png sibling.
func (s *Session) decodeLightmaps(ctx context.Context, logger log.Logger, dir string, entries []manifest.LightmapEntry) []scene.Lightmap {
	if len(entries) == 0 {
		colors, _ := filepath.Glob(filepath.Join(dir, "*"+colorSuffix))
		sort.Strings(colors)
		for i, c := range colors {
			e := manifest.LightmapEntry{Index: i, ColorPath: filepath.Base(c)}
			d := strings.TrimSuffix(e.ColorPath, colorSuffix) + dirSuffix
			if _, err := os.Stat(filepath.Join(dir, d)); err == nil {
				e.DirPath = d
			}
			entries = append(entries, e)
		}
	}

	size := 0
	for _, e := range entries {
		if e.Index >= size && e.Index < maxLightmaps {
			size = e.Index + 1
		}
	}
	lms := make([]scene.Lightmap, size)
	for _, e := range entries {
		if e.Index < 0 || e.Index >= maxLightmaps {
			logger.Warn(ctx, "lightmap entry index out of range", "index", e.Index, "max", maxLightmaps)
			continue
		}
		lms[e.Index] = scene.Lightmap{
			Color: s.decodeImage(ctx, logger, dir, e.ColorPath),
			Dir:   s.decodeImage(ctx, logger, dir, e.DirPath),
		}
	}
	return lms
}

func (s *Session) decodeImage(ctx context.Context, logger log.Logger, dir, name string) image.Image {
	if name == "" {
		return nil
	}
	img, err := readPNG(dir, name)
	if err != nil {
		logger.Warn(ctx, "lightmap image skipped", "file", name, "err", err)
		return nil
	}
	return img
}

func readPNG(dir, name string) (image.Image, error) {
	path, err := pathutil.SafeJoin(dir, name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Mark(xerrors.Wrapf(err, "open %s", name), manifest.ErrAssetMissing)
		}
		return nil, xerrors.WithStack(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, xerrors.Wrapf(err, "decode %s", name)
	}
	return img, nil
}
