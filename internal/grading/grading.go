// Package grading derives grades from raw marks and a subject's marking
// scheme. It is pure: the write path calls Compute before persisting a
// result, and the derived fields are never stored independently of it.
package grading

import (
	"fmt"
	"math"
	"sort"
)

// Band maps an inclusive lower percentage bound to a letter grade and
// grade point. A percentage falls into the highest band whose MinPercent
// it reaches.
type Band struct {
	MinPercent float64 `json:"min_percent"`
	Grade      string  `json:"grade"`
	Point      float64 `json:"point"`
}

// Scale is an ordered band table, highest band first.
type Scale []Band

// DefaultScale is the fallback when no GRADE_MAPPING configuration exists.
func DefaultScale() Scale {
	return Scale{
		{MinPercent: 90, Grade: "A+", Point: 10},
		{MinPercent: 80, Grade: "A", Point: 9},
		{MinPercent: 70, Grade: "B+", Point: 8},
		{MinPercent: 60, Grade: "B", Point: 7},
		{MinPercent: 50, Grade: "C", Point: 6},
		{MinPercent: 40, Grade: "D", Point: 5},
		{MinPercent: 0, Grade: "F", Point: 0},
	}
}

// Normalize sorts the bands highest first and validates the table.
func (s Scale) Normalize() (Scale, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("grading: empty scale")
	}
	out := make(Scale, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].MinPercent > out[j].MinPercent
	})
	for i, band := range out {
		if band.Grade == "" {
			return nil, fmt.Errorf("grading: band %d has no grade label", i)
		}
		if band.MinPercent < 0 || band.MinPercent > 100 {
			return nil, fmt.Errorf("grading: band %q bound %.2f out of range", band.Grade, band.MinPercent)
		}
	}
	if out[len(out)-1].MinPercent != 0 {
		return nil, fmt.Errorf("grading: scale does not cover 0%%")
	}
	return out, nil
}

// Derived holds the computed fields of a result.
type Derived struct {
	Percentage float64
	Grade      string
	GradePoint float64
	IsPassed   bool
}

// Compute derives percentage, grade, grade point and pass status from the
// obtained marks and the subject scheme. IsPassed compares raw marks
// against passMarks and is independent of the band table.
func Compute(marks, maxMarks, passMarks float64, scale Scale) (Derived, error) {
	if maxMarks <= 0 {
		return Derived{}, fmt.Errorf("grading: max marks must be positive, got %.2f", maxMarks)
	}
	if passMarks > maxMarks {
		return Derived{}, fmt.Errorf("grading: pass marks %.2f exceed max marks %.2f", passMarks, maxMarks)
	}
	if marks < 0 || marks > maxMarks {
		return Derived{}, fmt.Errorf("grading: marks %.2f out of range [0, %.2f]", marks, maxMarks)
	}
	if len(scale) == 0 {
		scale = DefaultScale()
	}

	pct := round2(marks / maxMarks * 100)

	d := Derived{
		Percentage: pct,
		IsPassed:   marks >= passMarks,
	}
	for _, band := range scale {
		if pct >= band.MinPercent {
			d.Grade = band.Grade
			d.GradePoint = band.Point
			return d, nil
		}
	}
	// Unreachable with a normalized scale; keep the lowest band as catch-all.
	last := scale[len(scale)-1]
	d.Grade = last.Grade
	d.GradePoint = last.Point
	return d, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
