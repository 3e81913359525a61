package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for names that would land outside their root.
var ErrUnsafePath = errors.New("unsafe path")

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// SafeJoin joins an archive or manifest supplied name onto root. Names use
// forward slashes; backslashes are treated as separators too. Absolute
// names, drive letters and dot segments are rejected.
func SafeJoin(root, name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	slashed = strings.TrimSuffix(slashed, "/")
	if slashed == "" {
		return "", errors.Join(ErrUnsafePath, errors.New("empty name"))
	}
	if strings.HasPrefix(slashed, "/") || filepath.VolumeName(slashed) != "" || strings.Contains(slashed, ":") {
		return "", errors.Join(ErrUnsafePath, errors.New("absolute name: "+name))
	}
	if HasDotSegments(slashed) {
		return "", errors.Join(ErrUnsafePath, errors.New("dot segment in name: "+name))
	}

	target := filepath.Join(root, filepath.FromSlash(slashed))

	// belt and braces: the cleaned target must stay below root
	cleanRoot := filepath.Clean(root) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(target)+string(os.PathSeparator), cleanRoot) {
		return "", errors.Join(ErrUnsafePath, errors.New("name escapes root: "+name))
	}
	return target, nil
}
