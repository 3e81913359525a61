package manifest

import "strings"

// PathSep joins node names in a LightmapNodeBinding path.
const PathSep = "/"

// JoinPath builds a root-to-leaf node path.
func JoinPath(names ...string) string { return strings.Join(names, PathSep) }

// SplitPath splits a node path into its names. An empty path has no names.
func SplitPath(p string) []string {
	if p == "" {
		return nil
	}
	return strings.Split(p, PathSep)
}

// StripRoot drops the first name of a path, which is the build-time root
// and never matches the freshly created root on the loading side. A single
// name is returned as is.
func StripRoot(p string) string {
	parts := SplitPath(p)
	if len(parts) <= 1 {
		return p
	}
	return JoinPath(parts[1:]...)
}

// Leaf returns the last name of a path.
func Leaf(p string) string {
	parts := SplitPath(p)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
