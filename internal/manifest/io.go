package manifest

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/keithlinneman/tmodkit/internal/xerrors"
)

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Wrapf(err, "create dir for %s", path)
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return xerrors.Wrapf(err, "encode %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return xerrors.Wrapf(err, "write %s", path)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return xerrors.Mark(xerrors.Newf("%s not found", path), ErrAssetMissing)
		}
		return xerrors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return xerrors.Wrapf(err, "decode %s", filepath.Base(path))
	}
	return nil
}

// WriteScripts writes Scripts/script_data.json under modDir.
func WriteScripts(modDir string, m ScriptManifest) error {
	return writeJSON(filepath.Join(modDir, ScriptsDir, ScriptManifestFile), m)
}

// ReadScripts reads Scripts/script_data.json. A missing file is ErrAssetMissing.
func ReadScripts(modDir string) (ScriptManifest, error) {
	var m ScriptManifest
	err := readJSON(filepath.Join(modDir, ScriptsDir, ScriptManifestFile), &m)
	return m, err
}

func WriteShaders(modDir string, m ShaderManifest) error {
	return writeJSON(filepath.Join(modDir, ShadersDir, ShaderManifestFile), m)
}

func ReadShaders(modDir string) (ShaderManifest, error) {
	var m ShaderManifest
	err := readJSON(filepath.Join(modDir, ShadersDir, ShaderManifestFile), &m)
	return m, err
}

func WriteLightmaps(modDir string, m LightmapManifest) error {
	return writeJSON(filepath.Join(modDir, LightmapsDir, LightmapManifestFile), m)
}

func ReadLightmaps(modDir string) (LightmapManifest, error) {
	var m LightmapManifest
	err := readJSON(filepath.Join(modDir, LightmapsDir, LightmapManifestFile), &m)
	return m, err
}

// PropertiesFileName maps a shader file name to its property snapshot file:
// "Custom_Foo.shadergraph" becomes "Custom_Foo_properties.json".
func PropertiesFileName(shaderFile string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(shaderFile, ShaderGraphExt), ShaderExt)
	return base + PropertiesExt
}

func WriteProperties(modDir, shaderFile string, snap MaterialPropertySnapshot) error {
	return writeJSON(filepath.Join(modDir, ShadersDir, PropertiesFileName(shaderFile)), snap)
}

func ReadProperties(modDir, shaderFile string) (MaterialPropertySnapshot, error) {
	var snap MaterialPropertySnapshot
	err := readJSON(filepath.Join(modDir, ShadersDir, PropertiesFileName(shaderFile)), &snap)
	return snap, err
}

// LightmapImageNames returns the color and direction file names for slot i.
func LightmapImageNames(i int) (color, dir string) {
	n := "lightmap_" + strconv.Itoa(i)
	return n + "_color.png", n + "_dir.png"
}
