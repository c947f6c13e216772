package roleooc

import (
	"strings"

	"golang.org/x/exp/slices"
)

// FilterRule is evaluated against one field of a record.
// With ShouldInclude set, the field is treated as a list and the rule
// matches when ParamValue is a member. Otherwise the rule matches on
// scalar equality. A rule over an absent field never matches.
type FilterRule struct {
	ParamName     string
	ParamValue    any
	ShouldInclude bool
}

// FilterSpec is a rule set, AND-combined by default, OR-combined with OrCheck.
type FilterSpec struct {
	Rules   []FilterRule
	OrCheck bool
}

// Match reports whether the record passes the filter.
// Evaluation is pure.
func (self *FilterSpec) Match(record Record) bool {
	if self.OrCheck {
		for _, rule := range self.Rules {
			if rule.match(record) {
				return true
			}
		}
		return false
	}
	for _, rule := range self.Rules {
		if !rule.match(record) {
			return false
		}
	}
	return true
}

func (self *FilterRule) match(record Record) bool {
	value, ok := record[self.ParamName]
	if !ok || value == nil {
		return false
	}
	if self.ShouldInclude {
		return listContains(value, self.ParamValue)
	}
	return equalValues(value, self.ParamValue)
}

// UserFilterRule is evaluated against the current viewer combined with the
// changed record: the viewer's ParamName field against the record's
// ObjectParamName field, or a literal ParamValue. ShouldBeTrue nil means true.
type UserFilterRule struct {
	ParamName       string
	ObjectParamName string
	ParamValue      any
	ShouldInclude   bool
	ShouldBeTrue    *bool
}

type UserFilterSpec struct {
	Rules   []UserFilterRule
	OrCheck bool
}

func (self *UserFilterSpec) Match(user Record, record Record) bool {
	if self.OrCheck {
		for _, rule := range self.Rules {
			if rule.match(user, record) {
				return true
			}
		}
		return false
	}
	for _, rule := range self.Rules {
		if !rule.match(user, record) {
			return false
		}
	}
	return true
}

func (self *UserFilterRule) match(user Record, record Record) bool {
	shouldBeTrue := true
	if self.ShouldBeTrue != nil {
		shouldBeTrue = *self.ShouldBeTrue
	}

	objectValue, ok := record[self.ObjectParamName]
	if !ok || objectValue == nil {
		return !shouldBeTrue
	}

	var isIncluded bool
	if self.ShouldInclude {
		userValue, ok := user[self.ParamName]
		if !ok || userValue == nil {
			return !shouldBeTrue
		}
		isIncluded = listContains(userValue, objectValue)
	} else {
		isIncluded = equalValues(self.ParamValue, objectValue)
	}

	return isIncluded == shouldBeTrue
}

// SortSpec defines a total order by string/number comparison, with
// fallback-field substitution when the primary field is absent.
type SortSpec struct {
	ParamName         string
	FallbackParamName string
	Reverse           bool
}

func (self *SortSpec) key(record Record) (any, bool) {
	if value, ok := record[self.ParamName]; ok && value != nil {
		return value, true
	}
	if self.FallbackParamName != "" {
		if value, ok := record[self.FallbackParamName]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

// Compare orders two records. Records where both the primary
// and the fallback field are absent compare as equal, which keeps the
// relative insertion order under a stable sort.
func (self *SortSpec) Compare(a Record, b Record) int {
	aKey, aOk := self.key(a)
	bKey, bOk := self.key(b)
	if !aOk || !bOk {
		return 0
	}

	c := compareValues(aKey, bKey)
	if self.Reverse {
		return -c
	}
	return c
}

// Sort stable-sorts the records in place.
func (self *SortSpec) Sort(records []Record) {
	slices.SortStableFunc(records, self.Compare)
}

// numeric fields compare numerically, strings lexicographically and
// case-sensitively as provided
func compareValues(a any, b any) int {
	if aNum, ok := numericValue(a); ok {
		if bNum, ok := numericValue(b); ok {
			switch {
			case aNum < bNum:
				return -1
			case bNum < aNum:
				return 1
			default:
				return 0
			}
		}
	}
	if aStr, ok := a.(string); ok {
		if bStr, ok := b.(string); ok {
			return strings.Compare(aStr, bStr)
		}
	}
	return 0
}

func equalValues(a any, b any) bool {
	if aNum, ok := numericValue(a); ok {
		if bNum, ok := numericValue(b); ok {
			return aNum == bNum
		}
		return false
	}
	return a == b
}

// JSON decoding yields float64 but local callers may pass any numeric kind
func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func listContains(listValue any, member any) bool {
	switch list := listValue.(type) {
	case []any:
		for _, value := range list {
			if equalValues(value, member) {
				return true
			}
		}
	case []string:
		memberStr, ok := member.(string)
		if !ok {
			return false
		}
		return slices.Contains(list, memberStr)
	}
	return false
}
