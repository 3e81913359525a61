// Package scene is the in-process model of the live scene graph that mods
// are harvested from and loaded into: nodes with behavior components,
// renderers with materials and shaders, and the scene-wide lightmap array.
//
// A real engine owns this state; tmodkit only needs the read and write
// operations listed on the types here. Document describes a scene in YAML
// so the command line tool can drive builds and loads without an engine.
package scene
