package router

import (
	"encoding/json"
	"strings"

	"paperqa/internal/calc"
	"paperqa/internal/domain"
)

// StripFences removes Markdown code fences and a leading "json" language tag.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = strings.TrimSpace(s[4:])
	}
	return s
}

func field(raw, name string) (string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(StripFences(raw)), &obj); err != nil {
		return "", false
	}
	v, ok := obj[name].(string)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// ParseCategory reads {"category": "..."}; anything unusable yields rag.
func ParseCategory(raw string) domain.Category {
	v, ok := field(raw, "category")
	if !ok {
		return domain.CategoryRAG
	}
	c := domain.Category(strings.ToLower(v))
	if !c.Valid() {
		return domain.CategoryRAG
	}
	return c
}

// ParseTarget reads {"target": "..."}, returning "" when absent.
func ParseTarget(raw string) string {
	v, _ := field(raw, "target")
	return v
}

// ParseExpression reads {"expression": "..."}, returning "" when absent or
// when the expression is not plain arithmetic.
func ParseExpression(raw string) string {
	v, ok := field(raw, "expression")
	if !ok {
		return ""
	}
	if _, err := calc.Parse(v); err != nil {
		return ""
	}
	return v
}

// Decide combines the category reply with the follow-up reply (target or
// expression) into a decision that always satisfies its invariants.
func Decide(categoryRaw, payloadRaw string) domain.Decision {
	switch ParseCategory(categoryRaw) {
	case domain.CategoryDefinition:
		if t := ParseTarget(payloadRaw); t != "" {
			return domain.Decision{Category: domain.CategoryDefinition, Target: t}
		}
	case domain.CategoryCalculation:
		if e := ParseExpression(payloadRaw); e != "" {
			return domain.Decision{Category: domain.CategoryCalculation, Expression: e}
		}
	}
	return domain.Decision{Category: domain.CategoryRAG}
}
