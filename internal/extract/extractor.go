package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/edurank/gradeproof/internal/curriculum"
)

// GradeCell holds the values read for one module. Nil means the field was
// not visible in the evidence.
type GradeCell struct {
	Exam       *float64 `json:"exam"`
	Continuous *float64 `json:"continuous"`
}

var gradeToken = regexp.MustCompile(`\b\d{1,2}(?:[.,]\d{1,2})?\b`)

// windowLines is how far below a module hit numeric values are searched:
// the matched line plus the next two, covering portals that wrap a row.
const windowLines = 3

// ParseGrades turns raw OCR text into per-module values. Pure function.
//
// The assignment rule is positional: the first in-range number in the
// window is the exam mark, the second the continuous mark. This ignores
// nearby labels on purpose; it matches the portal layouts we verify
// against, but is a known accuracy limitation when OCR reorders tokens.
func ParseGrades(text string, reg *curriculum.Registry) map[curriculum.ModuleID]GradeCell {
	grades := make(map[curriculum.ModuleID]GradeCell)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		id, ok := reg.Resolve(line)
		if !ok {
			continue
		}
		if _, seen := grades[id]; seen {
			continue
		}
		module, _ := reg.Get(id)
		values := scanWindow(lines, i)
		cell := GradeCell{}
		if len(values) > 0 {
			cell.Exam = &values[0]
		}
		if module.HasContinuous && len(values) > 1 {
			cell.Continuous = &values[1]
		}
		grades[id] = cell
	}
	return grades
}

// UnrecognizedRows returns the lines that carry grade-like numbers but
// resolve to no known module. These feed the structure validator as
// evidence of fabricated or foreign rows.
func UnrecognizedRows(text string, reg *curriculum.Registry) []string {
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !hasLetters(trimmed) || len(gradeToken.FindAllString(trimmed, -1)) == 0 {
			continue
		}
		if _, ok := reg.Resolve(trimmed); ok {
			continue
		}
		if looksLikeHeader(trimmed) {
			continue
		}
		rows = append(rows, trimmed)
	}
	return rows
}

func hasLetters(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}

var headerMarkers = []string{"semestre", "session", "moyenne", "credit", "coefficient", "annee", "matricule"}

func looksLikeHeader(line string) bool {
	normalized := curriculum.Normalize(line)
	for _, marker := range headerMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

func scanWindow(lines []string, start int) []float64 {
	var values []float64
	for off := 0; off < windowLines && start+off < len(lines); off++ {
		for _, token := range gradeToken.FindAllString(lines[start+off], -1) {
			value, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
			if err != nil {
				continue
			}
			if value < 0 || value > 20 {
				continue
			}
			values = append(values, value)
		}
	}
	return values
}

// PageKind tags which of the two expected portal screens a frame shows.
type PageKind string

const (
	PageUnknown    PageKind = "unknown"
	PageExam       PageKind = "exam"
	PageContinuous PageKind = "continuous"
)

var (
	examMarkers       = []string{"examen", "exam", "notes dexamen", "notes d examen", "resultats examens"}
	continuousMarkers = []string{"controle continu", "travaux diriges", "continuous assessment", "notes td", "interrogation"}
)

// ClassifyPage decides the page type from header keywords in the OCR text.
func ClassifyPage(text string) PageKind {
	normalized := curriculum.Normalize(text)
	examHits := countMarkers(normalized, examMarkers)
	continuousHits := countMarkers(normalized, continuousMarkers)
	switch {
	case continuousHits > examHits:
		return PageContinuous
	case examHits > continuousHits:
		return PageExam
	default:
		return PageUnknown
	}
}

func countMarkers(text string, markers []string) int {
	hits := 0
	for _, marker := range markers {
		hits += strings.Count(text, marker)
	}
	return hits
}
