// Package archive provides the pure part-planning algorithm for
// size-bounded multi-part archives. Streaming the actual ZIP bytes is
// app-layer work; this package only decides which file goes into which
// part.
package archive

// DefaultPartCeiling is the default cumulative input size per part.
const DefaultPartCeiling int64 = 400 << 20 // 400 MiB

// File is one packing candidate (value type).
type File struct {
	Path string
	Name string // entry name inside the archive
	Size int64
}

// Part is one planned archive segment (value type).
// Indices are contiguous and start at 1.
type Part struct {
	Index     int
	Files     []File
	InputSize int64 // sum of member sizes before compression
}

// PlanParts splits files into parts whose cumulative input size stays
// at or under the ceiling, in input order. A file that alone exceeds
// the ceiling is written whole into its own part; files are never
// split. A ceiling of zero or less means unbounded, which degenerates
// to a single part.
// This is a PURE function.
func PlanParts(files []File, ceiling int64) []Part {
	if len(files) == 0 {
		return nil
	}

	var parts []Part
	current := Part{Index: 1}

	for _, f := range files {
		if ceiling > 0 && len(current.Files) > 0 && current.InputSize+f.Size > ceiling {
			parts = append(parts, current)
			current = Part{Index: current.Index + 1}
		}
		current.Files = append(current.Files, f)
		current.InputSize += f.Size
	}

	return append(parts, current)
}
