package config

// MergeDocs layers a benchmark's overrides onto its template and returns the
// combined document. Neither input is modified. Map values merge recursively;
// scalar and list values from the override replace the template's wholesale,
// including zero values such as `active: false`.
func MergeDocs(template, override RawDoc) RawDoc {
	return RawDoc(mergeMaps(template, override))
}

func mergeMaps(template, override map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(template)+len(override))
	for key, val := range template {
		out[key] = copyValue(val)
	}
	for key, val := range override {
		if existing, ok := out[key]; ok {
			existingMap, eok := existing.(map[string]interface{})
			overrideMap, ook := val.(map[string]interface{})
			if eok && ook {
				out[key] = mergeMaps(existingMap, overrideMap)
				continue
			}
		}
		out[key] = copyValue(val)
	}
	return out
}

func copyValue(val interface{}) interface{} {
	switch v := val.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, elem := range v {
			out[key] = copyValue(elem)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = copyValue(elem)
		}
		return out
	default:
		return v
	}
}
