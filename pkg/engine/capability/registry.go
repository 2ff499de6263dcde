// Package capability defines the fixed mode-to-capability mapping. The
// table is compile-time data; there is no way to grant a capability to a
// mode at runtime.
package capability

import "Bindr/pkg/engine/api"

var modeCapabilities = map[api.Mode][]api.Capability{
	api.ModeBrainstorm: {
		api.CapReadFile,
	},
	api.ModePlan: {
		api.CapReadFile,
		api.CapCreateFile,
		api.CapCreateDirectory,
	},
	api.ModeExecute: {
		api.CapReadFile,
		api.CapCreateFile,
		api.CapModifyFile,
		api.CapExecuteCommand,
	},
	api.ModeDocument: {
		api.CapReadFile,
		api.CapWriteDocFile,
	},
}

// For returns the capability set of the given mode. The returned slice is
// a copy; callers may not mutate the table through it. Unknown modes get
// an empty set.
func For(mode api.Mode) []api.Capability {
	caps, ok := modeCapabilities[mode]
	if !ok {
		return nil
	}
	out := make([]api.Capability, len(caps))
	copy(out, caps)
	return out
}

// Allows reports whether the mode grants the capability.
func Allows(mode api.Mode, cap api.Capability) bool {
	for _, c := range modeCapabilities[mode] {
		if c == cap {
			return true
		}
	}
	return false
}
