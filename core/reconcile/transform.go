package reconcile

import (
	"strings"

	"catalogue-ingester/core/failure"
)

// TransformKey maps key from the source prefix to the target prefix.
// key must start with source followed by "/"; an empty source matches every
// key. A trailing "/" on source or target is ignored.
func TransformKey(key, source, target string) (string, error) {
	source = strings.TrimSuffix(source, "/")
	target = strings.TrimSuffix(target, "/")

	rest := key
	if source != "" {
		var ok bool
		rest, ok = strings.CutPrefix(key, source+"/")
		if !ok {
			return "", failure.InvalidKeyFormat.New("key %q does not start with %q", key, source+"/")
		}
	}
	if rest == "" {
		return "", failure.InvalidKeyFormat.New("key %q has no object name", key)
	}

	if target == "" {
		return rest, nil
	}
	return target + "/" + rest, nil
}
