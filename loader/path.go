package loader

import (
	"path"
	"strings"

	"github.com/wippyai/script-runtime/errors"
)

// ResolveID normalizes a requested module id. Relative requests ("./x",
// "../x") combine with the requester's directory; anything that normalizes
// to an empty id or escapes above the root fails with BadPath.
func ResolveID(parentID, requested string) (string, error) {
	if requested == "" {
		return "", errors.BadPath(requested)
	}
	if !strings.HasPrefix(requested, "./") && !strings.HasPrefix(requested, "../") {
		cleaned := path.Clean(requested)
		if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
			return "", errors.BadPath(requested)
		}
		return cleaned, nil
	}

	combined := path.Join(path.Dir(parentID), requested)
	if combined == "" || combined == "." || combined == ".." || strings.HasPrefix(combined, "../") {
		return "", errors.BadPath(requested)
	}
	return combined, nil
}
