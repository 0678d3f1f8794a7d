package binding

// Placeholders collects the placeholder paths referenced anywhere in a
// template, in first-appearance order without duplicates. Only the root
// segment of each dotted path is reported, since that is the key a
// caller must supply in the context.
func Placeholders(template any) []string {
	seen := make(map[string]bool)
	var paths []string

	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			for _, m := range placeholderRe.FindAllStringSubmatch(t, -1) {
				root := rootSegment(m[1])
				if root != "" && !seen[root] {
					seen[root] = true
					paths = append(paths, root)
				}
			}
		case map[string]any:
			for _, val := range t {
				walk(val)
			}
		case []any:
			for _, val := range t {
				walk(val)
			}
		case []map[string]any:
			for _, val := range t {
				walk(val)
			}
		}
	}
	walk(template)
	return paths
}

func rootSegment(path string) string {
	for i, r := range path {
		if r == '.' || r == '[' {
			return path[:i]
		}
	}
	return path
}
