package reconcile

// UniqueTarget is one distinct destination of a folder.
type UniqueTarget struct {
	Key string
	URL string
}

// Compile removes links that share an identity key, keeping the first
// occurrence. Links whose key is empty are dropped.
func Compile(set TargetSet) []UniqueTarget {
	seen := make(map[string]struct{}, len(set.Links))
	out := make([]UniqueTarget, 0, len(set.Links))
	for _, link := range set.Links {
		key := Normalize(link.URL)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, UniqueTarget{Key: key, URL: link.URL})
	}
	return out
}

// HasLinks reports whether the folder names at least one destination.
func HasLinks(set TargetSet) bool {
	for _, link := range set.Links {
		if link.URL != "" {
			return true
		}
	}
	return false
}
