package manifest

// PropertyType tags the PropertyValue union. Range is stored like Float.
type PropertyType string

const (
	PropertyColor   PropertyType = "Color"
	PropertyVector  PropertyType = "Vector"
	PropertyFloat   PropertyType = "Float"
	PropertyRange   PropertyType = "Range"
	PropertyTexture PropertyType = "TexEnv"
)

// PropertyValue is one captured material parameter. Only the fields that
// belong to Type are meaningful; the rest stay at their zero value.
type PropertyValue struct {
	Name          string       `json:"name"`
	Type          PropertyType `json:"type"`
	FloatValue    float32      `json:"floatValue"`
	ColorValue    []float32    `json:"colorValue,omitempty"`
	VectorValue   []float32    `json:"vectorValue,omitempty"`
	TextureName   string       `json:"textureName,omitempty"`
	TextureOffset []float32    `json:"textureOffset,omitempty"`
	TextureScale  []float32    `json:"textureScale,omitempty"`
}

// MaterialPropertySnapshot records one representative material for a
// graph-variant shader.
type MaterialPropertySnapshot struct {
	MaterialName string          `json:"materialName"`
	ShaderName   string          `json:"shaderName"`
	Properties   []PropertyValue `json:"properties"`
}

func ColorValue(name string, rgba [4]float32) PropertyValue {
	return PropertyValue{Name: name, Type: PropertyColor, ColorValue: rgba[:]}
}

func VectorValue(name string, v [4]float32) PropertyValue {
	return PropertyValue{Name: name, Type: PropertyVector, VectorValue: v[:]}
}

func FloatValue(name string, f float32) PropertyValue {
	return PropertyValue{Name: name, Type: PropertyFloat, FloatValue: f}
}

func RangeValue(name string, f float32) PropertyValue {
	return PropertyValue{Name: name, Type: PropertyRange, FloatValue: f}
}

// TextureValue records a texture binding. An unbound slot is captured
// with an empty name and no offset or scale.
func TextureValue(name, texture string, offset, scale [2]float32) PropertyValue {
	return PropertyValue{
		Name:          name,
		Type:          PropertyTexture,
		TextureName:   texture,
		TextureOffset: offset[:],
		TextureScale:  scale[:],
	}
}

// Vec4 converts s to a fixed vector; false unless s has exactly four values.
func Vec4(s []float32) ([4]float32, bool) {
	var out [4]float32
	if len(s) != 4 {
		return out, false
	}
	copy(out[:], s)
	return out, true
}

// Vec2 converts s to a fixed pair; false unless s has exactly two values.
func Vec2(s []float32) ([2]float32, bool) {
	var out [2]float32
	if len(s) != 2 {
		return out, false
	}
	copy(out[:], s)
	return out, true
}
