// Package manifest holds the serializable records that describe a packaged
// mod: which scripts, shaders and lightmaps were harvested from the source
// scene, and how to reconnect them to nodes in the loading host. The JSON
// field names are part of the archive format and must not change.
package manifest

import "errors"

// ErrAssetMissing marks a referenced file or manifest that is not on disk.
// Callers log and skip; it never fails a whole build or load.
var ErrAssetMissing = errors.New("asset missing")

// ErrDuplicateName is returned by validation when a manifest repeats a name.
var ErrDuplicateName = errors.New("duplicate manifest entry")

// Directory and file names inside a mod archive.
const (
	ScriptsDir   = "Scripts"
	ShadersDir   = "Shaders"
	LightmapsDir = "Lightmaps"

	ScriptManifestFile   = "script_data.json"
	ShaderManifestFile   = "shader_data.json"
	LightmapManifestFile = "lightmap_data.json"

	ScriptExt      = ".cs"
	ShaderExt      = ".shader"
	ShaderGraphExt = ".shadergraph"
	PropertiesExt  = "_properties.json"
)

// PackageManifest is the root record of one build. It is written once and
// never mutated afterwards.
type PackageManifest struct {
	Scripts   ScriptManifest
	Shaders   ShaderManifest
	Lightmaps LightmapManifest
}

type ScriptDescriptor struct {
	ScriptName string `json:"scriptName"`
	// ClassName is the fully-qualified type name and the identity key.
	ClassName string `json:"className"`
}

type ScriptManifest struct {
	Scripts []ScriptDescriptor `json:"scripts"`
}

type ShaderDescriptor struct {
	// ShaderName is the file name under Shaders/.
	ShaderName      string `json:"shaderName"`
	OriginalName    string `json:"originalName"`
	IsShaderGraph   bool   `json:"isShaderGraph"`
	ShaderGraphPath string `json:"shaderGraphPath,omitempty"`
}

type ShaderManifest struct {
	Shaders []ShaderDescriptor `json:"shaders"`
}

// LightmapEntry names the image pair baked for one lightmap index. Either
// path may be empty.
type LightmapEntry struct {
	Index     int    `json:"index"`
	ColorPath string `json:"colorPath,omitempty"`
	DirPath   string `json:"dirPath,omitempty"`
}

// LightmapNodeBinding ties a renderable node, addressed by its root-to-leaf
// name path, to a lightmap slot.
type LightmapNodeBinding struct {
	ObjectPath          string     `json:"objectPath"`
	LightmapIndex       int        `json:"lightmapIndex"`
	LightmapScaleOffset [4]float32 `json:"lightmapScaleOffset"`
}

type LightmapManifest struct {
	Lightmaps []LightmapEntry       `json:"lightmaps,omitempty"`
	Renderers []LightmapNodeBinding `json:"renderers"`
}
