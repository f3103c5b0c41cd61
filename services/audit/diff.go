package audit

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ruleplane/backend/models"
)

// FieldDiff compares two flat field maps and returns the per-field
// old/new pairs for every key whose value differs. Keys present on only
// one side diff against the empty string.
func FieldDiff(before, after map[string]string) map[string]models.FieldChange {
	changes := make(map[string]models.FieldChange)

	for key, oldVal := range before {
		newVal, ok := after[key]
		if !ok {
			changes[key] = models.FieldChange{Old: oldVal, New: ""}
			continue
		}
		if oldVal != newVal {
			changes[key] = models.FieldChange{Old: oldVal, New: newVal}
		}
	}
	for key, newVal := range after {
		if _, ok := before[key]; !ok {
			changes[key] = models.FieldChange{Old: "", New: newVal}
		}
	}

	return changes
}

// Flatten converts a struct (or map) into a flat string-keyed field map
// using json tags for key names. Nested values render via fmt.
func Flatten(v interface{}) map[string]string {
	out := make(map[string]string)
	if v == nil {
		return out
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return out
		}
		rv = rv.Elem()
	}

	if rv.Kind() == reflect.Map {
		for _, key := range rv.MapKeys() {
			out[fmt.Sprint(key.Interface())] = fmt.Sprint(rv.MapIndex(key).Interface())
		}
		return out
	}

	if rv.Kind() != reflect.Struct {
		return out
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
			name = strings.Split(tag, ",")[0]
		}

		fv := rv.Field(i)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				out[name] = ""
				continue
			}
			fv = fv.Elem()
		}
		out[name] = fmt.Sprint(fv.Interface())
	}

	return out
}

// LineOp is the kind of a single diff line
type LineOp string

const (
	LineEqual   LineOp = "equal"
	LineRemoved LineOp = "removed"
	LineAdded   LineOp = "added"
)

// DiffLine is one line of a rendered text diff
type DiffLine struct {
	Op   LineOp `json:"op"`
	Text string `json:"text"`
}

// DiffLines computes a line-level diff between two texts using the
// longest common subsequence. When a removal and an addition are both
// possible at a position, the removal is emitted first, so a changed
// line always reads as its old text followed by its new text.
func DiffLines(oldText, newText string) []DiffLine {
	oldLines := splitLines(oldText)
	newLines := splitLines(newText)

	n := len(oldLines)
	m := len(newLines)

	// lcs[i][j] is the LCS length of oldLines[i:] and newLines[j:].
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var out []DiffLine
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case oldLines[i] == newLines[j]:
			out = append(out, DiffLine{Op: LineEqual, Text: oldLines[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			// Tie goes to the removal so old text precedes new text.
			out = append(out, DiffLine{Op: LineRemoved, Text: oldLines[i]})
			i++
		default:
			out = append(out, DiffLine{Op: LineAdded, Text: newLines[j]})
			j++
		}
	}
	for ; i < n; i++ {
		out = append(out, DiffLine{Op: LineRemoved, Text: oldLines[i]})
	}
	for ; j < m; j++ {
		out = append(out, DiffLine{Op: LineAdded, Text: newLines[j]})
	}

	return out
}

// RenderDiff formats a line diff in unified-style prefix notation.
func RenderDiff(lines []DiffLine) string {
	var sb strings.Builder
	for _, line := range lines {
		switch line.Op {
		case LineRemoved:
			sb.WriteString("- ")
		case LineAdded:
			sb.WriteString("+ ")
		default:
			sb.WriteString("  ")
		}
		sb.WriteString(line.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
