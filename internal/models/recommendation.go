package models

// Grade is the bufferbloat letter grade.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
	GradeF     Grade = "F"
)

// Valid reports whether g is one of the six defined grades.
func (g Grade) Valid() bool {
	switch g {
	case GradeAPlus, GradeA, GradeB, GradeC, GradeD, GradeF:
		return true
	}
	return false
}

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

func (c Confidence) Valid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

type Category string

const (
	CategoryNIC    Category = "NIC"
	CategoryRouter Category = "Router"
	CategoryDNS    Category = "DNS"
	CategorySystem Category = "System"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryNIC, CategoryRouter, CategoryDNS, CategorySystem:
		return true
	}
	return false
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Recommendation is a single actionable tuning suggestion derived from a
// benchmark result. Commands are presented to the user, never executed.
type Recommendation struct {
	ID               string     `json:"id" yaml:"id"`
	Title            string     `json:"title" yaml:"title"`
	Description      string     `json:"description" yaml:"description"`
	Confidence       Confidence `json:"confidence" yaml:"confidence"`
	EstimatedImpact  string     `json:"estimated_impact" yaml:"estimated_impact"`
	Category         Category   `json:"category" yaml:"category"`
	Commands         []string   `json:"commands" yaml:"commands"`
	RollbackCommands []string   `json:"rollback_commands" yaml:"rollback_commands"`
	RequiresAdmin    bool       `json:"requires_admin" yaml:"requires_admin"`
	Reversible       bool       `json:"reversible" yaml:"reversible"`
	RiskLevel        RiskLevel  `json:"risk_level" yaml:"risk_level"`
}
