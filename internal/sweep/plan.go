package sweep

import (
	"fmt"
	"maps"
	"strconv"
)

// Kind selects which generation parameter a sweep varies.
type Kind string

const (
	// KindShift varies sample_shift over 1..9 with guidance fixed at 7.
	KindShift Kind = "shift"
	// KindGuide varies sample_guide_scale over 0..10 with shift fixed at 5.
	KindGuide Kind = "guide"
)

// Model input field names.
const (
	FieldPrompt     = "prompt"
	FieldSeed       = "seed"
	FieldShift      = "sample_shift"
	FieldGuideScale = "sample_guide_scale"
)

const (
	defaultGuideScale = 7
	defaultShift      = 5
)

// ParseKind parses a command-line parameter kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindShift, KindGuide:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("invalid parameter type %q: must be %q or %q", s, KindShift, KindGuide)
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// ParamName is the model input field varied by this kind.
func (k Kind) ParamName() string {
	if k == KindShift {
		return FieldShift
	}
	return FieldGuideScale
}

// Values returns the swept values in ascending order.
func (k Kind) Values() []int {
	lo, hi := 0, 10
	if k == KindShift {
		lo, hi = 1, 9
	}

	values := make([]int, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		values = append(values, v)
	}
	return values
}

// Companion returns the parameter held constant while k is swept and the
// value it is held at.
func (k Kind) Companion() (name string, value int) {
	if k == KindShift {
		return FieldGuideScale, defaultGuideScale
	}
	return FieldShift, defaultShift
}

// Dir is the output directory for this kind, e.g. "guide_comparison".
func (k Kind) Dir() string {
	return string(k) + "_comparison"
}

// Filename is the output file name for value, e.g. "guide3.mp4".
func (k Kind) Filename(value int) string {
	return string(k) + strconv.Itoa(value) + ".mp4"
}

// Key is the object key for value, e.g. "guide_comparison/guide3.mp4".
func (k Kind) Key(value int) string {
	return k.Dir() + "/" + k.Filename(value)
}

// DefaultBaseParams returns the model inputs shared by every request of a
// sweep, before the companion default is added.
func DefaultBaseParams() map[string]any {
	return map[string]any{
		"num_frames":        81,
		"aspect_ratio":      "16:9",
		"sample_steps":      30,
		"frames_per_second": 16,
	}
}

// BaseParams returns a copy of params (or the defaults when nil) with the
// companion parameter of k set to its default. A companion already present
// in params is kept, and the varied field is removed.
func BaseParams(k Kind, params map[string]any) map[string]any {
	if params == nil {
		params = DefaultBaseParams()
	}

	base := maps.Clone(params)
	name, value := k.Companion()
	if _, ok := base[name]; !ok {
		base[name] = value
	}
	delete(base, k.ParamName())
	return base
}

// BuildRequest assembles the input for one task: a copy of base with the
// prompt, seed and varied field overwritten. base is not modified.
func BuildRequest(base map[string]any, prompt string, seed int64, name string, value int) map[string]any {
	req := make(map[string]any, len(base)+3)
	maps.Copy(req, base)
	req[FieldPrompt] = prompt
	req[FieldSeed] = seed
	req[name] = value
	return req
}
