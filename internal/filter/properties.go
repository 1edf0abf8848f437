package filter

import "strconv"

// PluginName is the display name of the drag threshold stage
const PluginName = "Drag Threshold"

// PropertyKind tells a settings UI which control to show
type PropertyKind string

const (
	KindFloat PropertyKind = "float"
	KindBool  PropertyKind = "bool"
)

// Property describes one user-facing setting of the filter
type Property struct {
	Name    string       `json:"name"`
	Key     string       `json:"key"`
	Kind    PropertyKind `json:"kind"`
	Unit    string       `json:"unit,omitempty"`
	Default string       `json:"default"`
	Tooltip string       `json:"tooltip"`
}

// Properties lists the settings of the drag threshold stage in display order
func Properties() []Property {
	def := DefaultConfig()
	return []Property{
		{
			Name:    "Threshold",
			Key:     "threshold",
			Kind:    KindFloat,
			Unit:    "px",
			Default: strconv.FormatFloat(def.Threshold, 'g', -1, 64),
			Tooltip: PluginName + ":\n\n" +
				"Threshold: The distance in pixels the pen must move before it is considered a drag. " +
				"Movement below this threshold will keep the cursor stationary, helping prevent accidental drags during clicks.",
		},
		{
			Name:    "Smooth Transition",
			Key:     "smooth_transition",
			Kind:    KindBool,
			Default: strconv.FormatBool(def.SmoothTransition),
			Tooltip: PluginName + ":\n\n" +
				"Smooth Transition: When enabled, the cursor will start moving from the anchor point rather than " +
				"jumping to the pen's actual position when the threshold is exceeded.",
		},
	}
}
