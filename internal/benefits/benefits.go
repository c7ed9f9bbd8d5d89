// Package benefits answers disability benefit standard lookups. The 15-grade
// day tables come from the 勞工保險失能給付標準 annex; occupational injury
// grades pay 1.5 times the ordinary schedule. Lookups are pure table reads —
// no model call is involved, so answers are exact and instant.
package benefits

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Grade holds the payout days for one disability grade.
type Grade struct {
	// Level is the disability grade, 1 (most severe) through 15.
	Level int
	// OrdinaryDays is the payout for ordinary injury or sickness.
	OrdinaryDays int
	// OccupationalDays is the payout for occupational injury (1.5x ordinary).
	OccupationalDays int
}

// builtinGrades is the statutory day table, grade 1 through 15.
var builtinGrades = []Grade{
	{1, 1200, 1800},
	{2, 1000, 1500},
	{3, 840, 1260},
	{4, 740, 1110},
	{5, 640, 960},
	{6, 540, 810},
	{7, 440, 660},
	{8, 360, 540},
	{9, 280, 420},
	{10, 220, 330},
	{11, 160, 240},
	{12, 100, 150},
	{13, 60, 90},
	{14, 40, 60},
	{15, 30, 45},
}

// Benefit is the result of a grade lookup.
type Benefit struct {
	// Level is the queried disability grade.
	Level int `json:"level"`
	// InjuryType is the caller-supplied injury type, echoed back.
	InjuryType string `json:"injury_type"`
	// BenefitType is the resolved payout schedule: 職業 or 普通.
	BenefitType string `json:"benefit_type"`
	// Days is the payout day count for the resolved schedule.
	Days int `json:"benefit_days"`
	// Severity is a coarse label for the grade: 較嚴重 / 中等 / 較輕微.
	Severity string `json:"severity"`
	// Explanation is the formatted human-readable summary.
	Explanation string `json:"explanation"`
}

// Table resolves disability grades to payout days.
type Table struct {
	grades map[int]Grade
}

// NewTable returns a Table backed by the builtin statutory day table.
func NewTable() *Table {
	t := &Table{grades: make(map[int]Grade, len(builtinGrades))}
	for _, g := range builtinGrades {
		t.grades[g.Level] = g
	}
	return t
}

// tableRow matches the annex JSON export's row shape.
type tableRow struct {
	Level            string `json:"失能等級"`
	OrdinaryDays     string `json:"普通傷病失能補助費給付標準"`
	OccupationalDays string `json:"職業傷病失能補償費給付標準"`
}

// LoadTable reads the annex JSON file at path and returns a Table built from
// it. Rows are strings like "1200日"; malformed rows are errors, not skips.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("benefits: failed to read table %s: %w", path, err)
	}
	var rows []tableRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("benefits: failed to parse table %s: %w", path, err)
	}

	t := &Table{grades: make(map[int]Grade, len(rows))}
	for _, row := range rows {
		level, err := strconv.Atoi(strings.TrimSpace(row.Level))
		if err != nil {
			return nil, fmt.Errorf("benefits: bad grade level %q: %w", row.Level, err)
		}
		ordinary, err := parseDays(row.OrdinaryDays)
		if err != nil {
			return nil, fmt.Errorf("benefits: grade %d: %w", level, err)
		}
		occupational, err := parseDays(row.OccupationalDays)
		if err != nil {
			return nil, fmt.Errorf("benefits: grade %d: %w", level, err)
		}
		t.grades[level] = Grade{Level: level, OrdinaryDays: ordinary, OccupationalDays: occupational}
	}
	if len(t.grades) == 0 {
		return nil, fmt.Errorf("benefits: table %s contains no grades", path)
	}
	return t, nil
}

// parseDays parses a "1200日" style day count.
func parseDays(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(s), "日"))
	if err != nil {
		return 0, fmt.Errorf("bad day count %q: %w", s, err)
	}
	return n, nil
}

// occupationalTypes are the injury type spellings that select the
// occupational payout schedule.
var occupationalTypes = map[string]bool{
	"職業傷病": true,
	"職業災害": true,
	"職業":   true,
}

// Lookup resolves a disability grade and injury type to its payout.
// Unknown grades are an error; unknown injury types fall back to the
// ordinary schedule, matching how claims are adjudicated by default.
func (t *Table) Lookup(level int, injuryType string) (*Benefit, error) {
	g, ok := t.grades[level]
	if !ok {
		return nil, fmt.Errorf("benefits: invalid disability grade %d", level)
	}

	injuryType = strings.TrimSpace(injuryType)
	if injuryType == "" {
		injuryType = "普通傷病"
	}
	benefitType := "普通"
	days := g.OrdinaryDays
	if occupationalTypes[injuryType] {
		benefitType = "職業"
		days = g.OccupationalDays
	}

	b := &Benefit{
		Level:       level,
		InjuryType:  injuryType,
		BenefitType: benefitType,
		Days:        days,
		Severity:    severity(level),
	}
	b.Explanation = explain(b)
	return b, nil
}

// severity buckets a grade into a coarse label.
func severity(level int) string {
	switch {
	case level <= 5:
		return "較嚴重"
	case level <= 10:
		return "中等"
	default:
		return "較輕微"
	}
}

// explain formats the operator-approved lookup summary.
func explain(b *Benefit) string {
	return fmt.Sprintf(`失能等級第%d級給付標準：

給付日數：%d日
傷病類型：%s
給付標準：%s傷病

說明：
• 失能等級第%d級屬於%s的失能程度
• 給付日數依勞工保險失能給付標準計算
• 職業傷病給付日數為普通傷病的1.5倍
• 實際給付金額需依投保薪資計算

注意事項：
• 需由健保特約醫院出具失能診斷書
• 申請時需檢附相關醫療證明文件
• 給付標準可能因法規修訂而調整`,
		b.Level, b.Days, b.InjuryType, b.BenefitType, b.Level, b.Severity)
}
