package registration

import "strings"

// joinPath joins path fragments with single slashes. Empty fragments and
// stray slashes are dropped. The result is "" (root) or starts with "/"
// and never ends with one.
func joinPath(fragments ...string) string {
	var b strings.Builder
	for _, fragment := range fragments {
		for _, segment := range strings.Split(fragment, "/") {
			if segment == "" {
				continue
			}
			b.WriteByte('/')
			b.WriteString(segment)
		}
	}
	return b.String()
}

// trimPathPrefix strips prefix from path when path equals prefix or
// continues below it. Both are compared in normalised form.
func trimPathPrefix(path, prefix string) (string, bool) {
	path, prefix = joinPath(path), joinPath(prefix)
	if prefix == "" {
		return path, true
	}
	if path == prefix {
		return "", true
	}
	if strings.HasPrefix(path, prefix+"/") {
		return path[len(prefix):], true
	}
	return path, false
}

// joinURL appends path fragments to a base URL, removing a trailing slash of the base
func joinURL(base string, fragments ...string) string {
	return strings.TrimRight(base, "/") + joinPath(fragments...)
}
