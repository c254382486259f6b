package verify

import (
	"fmt"

	"github.com/edurank/gradeproof/internal/curriculum"
	"github.com/edurank/gradeproof/internal/extract"
)

type StructureResult struct {
	Score  float64  `json:"score"`
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

const (
	penaltyMissingModule       = 12
	penaltyExtraModules        = 15 // flat, however many extras
	penaltyOutOfRange          = 10
	penaltyMissingField        = 5
	penaltyCoefficientMismatch = 8
	structureValidThreshold    = 60
)

// ValidateStructure scores how well the extracted module set matches the
// curriculum. extras are portal rows that looked like grade rows but
// resolved to no known module; coefficients are the per-module weights read
// from the portal, when visible.
func ValidateStructure(
	grades map[curriculum.ModuleID]extract.GradeCell,
	extras []string,
	coefficients map[curriculum.ModuleID]float64,
	reg *curriculum.Registry,
) *StructureResult {
	result := &StructureResult{Score: 100}

	for _, module := range reg.All() {
		cell, found := grades[module.ID]
		if !found {
			result.Score -= penaltyMissingModule
			result.Issues = append(result.Issues, fmt.Sprintf("missing module %s", module.ID))
			continue
		}
		if cell.Exam == nil {
			result.Score -= penaltyMissingField
			result.Issues = append(result.Issues, fmt.Sprintf("module %s missing exam mark", module.ID))
		} else if *cell.Exam < 0 || *cell.Exam > 20 {
			result.Score -= penaltyOutOfRange
			result.Issues = append(result.Issues, fmt.Sprintf("module %s exam mark out of range", module.ID))
		}
		if module.HasContinuous {
			if cell.Continuous == nil {
				if !module.AllowEmptyContinuous {
					result.Score -= penaltyMissingField
					result.Issues = append(result.Issues, fmt.Sprintf("module %s missing continuous mark", module.ID))
				}
			} else if *cell.Continuous < 0 || *cell.Continuous > 20 {
				result.Score -= penaltyOutOfRange
				result.Issues = append(result.Issues, fmt.Sprintf("module %s continuous mark out of range", module.ID))
			}
		}
		if coefficient, ok := coefficients[module.ID]; ok && coefficient != module.Coefficient {
			result.Score -= penaltyCoefficientMismatch
			result.Issues = append(result.Issues, fmt.Sprintf("module %s coefficient mismatch", module.ID))
		}
	}

	if len(extras) > 0 {
		result.Score -= penaltyExtraModules
		result.Issues = append(result.Issues, fmt.Sprintf("%d unrecognized grade rows", len(extras)))
	}

	if result.Score < 0 {
		result.Score = 0
	}
	result.Valid = result.Score >= structureValidThreshold
	return result
}
