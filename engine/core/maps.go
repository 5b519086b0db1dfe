package core

import "maps"

// CloneMap returns a shallow copy of m, or nil when m is nil.
func CloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	return maps.Clone(m)
}

// CloneMetadata copies each metadata map of a slice.
func CloneMetadata(in []map[string]any) []map[string]any {
	if in == nil {
		return nil
	}
	out := make([]map[string]any, len(in))
	for i, m := range in {
		out[i] = CloneMap(m)
	}
	return out
}
