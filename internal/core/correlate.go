package core

import "path"

// Correlate resolves each row's image_name against the stored asset paths,
// keyed by original upload filename. A match is replaced by the stored
// basename; anything else is kept literally, with no existence check.
// Candidates are returned in manifest order.
func Correlate(rows []ManifestRow, paths map[string]string) []Candidate {
	out := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		image := row.Value(FieldImageName)
		if stored, ok := paths[image]; ok && image != "" {
			image = path.Base(stored)
		}
		out = append(out, Candidate{Row: row, ImageName: image})
	}
	return out
}
