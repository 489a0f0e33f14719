package config

// mergeMaps merges override into base. Nested maps merge key by key; any
// other override value, lists included, replaces the base value. Neither
// input is modified.
func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(base)+len(override))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		baseMap, baseIsMap := result[k].(map[string]interface{})
		overrideMap, overrideIsMap := v.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			result[k] = mergeMaps(baseMap, overrideMap)
			continue
		}
		result[k] = v
	}
	return result
}
