package manifest

import (
	"errors"
	"fmt"
)

// Validate reports every duplicated script or shader name across the
// package. Lightmap bindings may legitimately repeat a path when sibling
// nodes share a name, so they are not checked here.
func (p PackageManifest) Validate() error {
	return errors.Join(p.Scripts.Validate(), p.Shaders.Validate())
}

func (m ScriptManifest) Validate() error {
	var errs []error
	byFile := make(map[string]bool, len(m.Scripts))
	byClass := make(map[string]bool, len(m.Scripts))
	for _, s := range m.Scripts {
		if byFile[s.ScriptName] {
			errs = append(errs, fmt.Errorf("%w: script file %q", ErrDuplicateName, s.ScriptName))
		}
		if byClass[s.ClassName] {
			errs = append(errs, fmt.Errorf("%w: script class %q", ErrDuplicateName, s.ClassName))
		}
		byFile[s.ScriptName] = true
		byClass[s.ClassName] = true
	}
	return errors.Join(errs...)
}

func (m ShaderManifest) Validate() error {
	var errs []error
	byFile := make(map[string]bool, len(m.Shaders))
	byName := make(map[string]bool, len(m.Shaders))
	for _, s := range m.Shaders {
		if byFile[s.ShaderName] {
			errs = append(errs, fmt.Errorf("%w: shader file %q", ErrDuplicateName, s.ShaderName))
		}
		if byName[s.OriginalName] {
			errs = append(errs, fmt.Errorf("%w: shader %q", ErrDuplicateName, s.OriginalName))
		}
		byFile[s.ShaderName] = true
		byName[s.OriginalName] = true
	}
	return errors.Join(errs...)
}
