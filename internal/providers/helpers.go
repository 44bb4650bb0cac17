package providers

import "strings"

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return make(map[string]string)
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func splitModel(model string) (prefix, rest string) {
	model = strings.TrimSpace(model)
	if i := strings.Index(model, "/"); i > 0 {
		return strings.ToLower(model[:i]), model[i+1:]
	}
	return "", model
}
