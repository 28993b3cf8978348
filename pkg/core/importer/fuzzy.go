package importer

import (
	"strings"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
)

// fuzzyThreshold is the minimum similarity for a header to claim a
// target field when the AI collaborator is unavailable.
const fuzzyThreshold = 0.60

// normalize strips everything but letters and digits so "Employee No."
// and "employee_number" compare on substance.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// similarity is a Levenshtein ratio over normalised strings, in [0,1].
func similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Containment of a whole name counts as a strong match: "basic"
	// inside "basicsalary".
	if strings.Contains(a, b) || strings.Contains(b, a) {
		shorter, longer := len(a), len(b)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}
	dist := levenshtein(a, b)
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return 1 - float64(dist)/float64(longest)
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// fuzzyMapColumns maps each source column to its best-scoring schema
// field, nil when nothing clears the threshold. Each target field is
// claimed at most once, best claim wins.
func fuzzyMapColumns(columns []string, schema Schema) map[string]*string {
	type claim struct {
		column string
		score  float64
	}
	best := make(map[string]claim) // target field -> winning claim
	mapping := make(map[string]*string, len(columns))
	for _, col := range columns {
		mapping[col] = nil
		var bestField string
		var bestScore float64
		for _, f := range schema {
			if s := similarity(col, f.Name); s > bestScore {
				bestField, bestScore = f.Name, s
			}
		}
		if bestScore < fuzzyThreshold {
			continue
		}
		if prior, ok := best[bestField]; ok && prior.score >= bestScore {
			continue
		}
		if prior, ok := best[bestField]; ok {
			mapping[prior.column] = nil
		}
		best[bestField] = claim{column: col, score: bestScore}
		field := bestField
		mapping[col] = &field
	}
	return mapping
}

// fuzzyDetectEntity scores each registered schema by how many headers
// clear the threshold against its fields and returns the best fit.
func fuzzyDetectEntity(reg *Registry, columns []string) models.ImportEntityType {
	var bestEntity models.ImportEntityType
	bestMatched := -1
	bestScore := 0.0
	for _, entity := range reg.Entities() {
		schema := reg.Handler(entity).Schema
		matched := 0
		score := 0.0
		for _, col := range columns {
			var top float64
			for _, f := range schema {
				if s := similarity(col, f.Name); s > top {
					top = s
				}
			}
			if top >= fuzzyThreshold {
				matched++
				score += top
			}
		}
		if matched > bestMatched || (matched == bestMatched && score > bestScore) {
			bestEntity, bestMatched, bestScore = entity, matched, score
		}
	}
	return bestEntity
}
