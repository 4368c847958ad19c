package rows

import "strings"

// SplitFamilies splits a comma-delimited family string, trimming each token
// and dropping empties. Case is preserved.
func SplitFamilies(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}

// DedupeFamilies removes duplicates case-sensitively while preserving
// first-seen order.
func DedupeFamilies(families []string) []string {
	seen := make(map[string]struct{}, len(families))
	out := make([]string, 0, len(families))
	for _, family := range families {
		if _, ok := seen[family]; ok {
			continue
		}
		seen[family] = struct{}{}
		out = append(out, family)
	}
	return out
}

// CleanFamilies trims and dedupes an already-tokenized family list, dropping
// blanks. Unlike SplitFamilies it never splits on commas, so a family name
// containing one survives intact.
func CleanFamilies(families []string) []string {
	out := make([]string, 0, len(families))
	for _, family := range families {
		token := strings.TrimSpace(family)
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return DedupeFamilies(out)
}

// NormalizeFamilies splits and dedupes in one pass, optionally appending a
// context family when it is not already present.
func NormalizeFamilies(raw, contextFamily string) []string {
	families := SplitFamilies(raw)
	if context := strings.TrimSpace(contextFamily); context != "" {
		families = append(families, context)
	}
	return DedupeFamilies(families)
}
