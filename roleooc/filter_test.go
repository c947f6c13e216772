package roleooc

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestFilterOrCheckUnions(t *testing.T) {
	filter := &FilterSpec{
		OrCheck: true,
		Rules: []FilterRule{
			{ParamName: "type", ParamValue: "a"},
			{ParamName: "type", ParamValue: "b"},
		},
	}

	assert.Equal(t, true, filter.Match(Record{"type": "a"}))
	assert.Equal(t, true, filter.Match(Record{"type": "b"}))
	assert.Equal(t, false, filter.Match(Record{"type": "c"}))
}

func TestFilterAndOverScalarContradiction(t *testing.T) {
	// the same scalar field cannot satisfy two different values, so AND
	// semantics degrade to the empty set
	filter := &FilterSpec{
		Rules: []FilterRule{
			{ParamName: "type", ParamValue: "a"},
			{ParamName: "type", ParamValue: "b"},
		},
	}

	assert.Equal(t, false, filter.Match(Record{"type": "a"}))
	assert.Equal(t, false, filter.Match(Record{"type": "b"}))
}

func TestFilterShouldIncludeMembership(t *testing.T) {
	filter := &FilterSpec{
		Rules: []FilterRule{
			{ParamName: "followers", ParamValue: "u1", ShouldInclude: true},
		},
	}

	assert.Equal(t, true, filter.Match(Record{"followers": []any{"u0", "u1"}}))
	assert.Equal(t, false, filter.Match(Record{"followers": []any{"u0"}}))
	// absent field never matches
	assert.Equal(t, false, filter.Match(Record{}))
}

func TestFilterAbsentFieldNeverMatches(t *testing.T) {
	filter := &FilterSpec{
		Rules: []FilterRule{
			{ParamName: "teamId", ParamValue: "t1"},
		},
	}

	assert.Equal(t, false, filter.Match(Record{}))
	assert.Equal(t, false, filter.Match(Record{"teamId": nil}))
}

func TestFilterNumericEquality(t *testing.T) {
	filter := &FilterSpec{
		Rules: []FilterRule{
			// local callers pass ints, decoded records carry float64
			{ParamName: "amount", ParamValue: 10},
		},
	}

	assert.Equal(t, true, filter.Match(Record{"amount": float64(10)}))
	assert.Equal(t, false, filter.Match(Record{"amount": float64(11)}))
}

func TestUserFilterMembership(t *testing.T) {
	shouldBeFalse := false
	user := Record{
		ObjectIdParam: "u1",
		"followingRooms": []any{"r1", "r2"},
	}

	following := &UserFilterSpec{
		Rules: []UserFilterRule{
			{ParamName: "followingRooms", ObjectParamName: ObjectIdParam, ShouldInclude: true},
		},
	}
	notFollowing := &UserFilterSpec{
		Rules: []UserFilterRule{
			{ParamName: "followingRooms", ObjectParamName: ObjectIdParam, ShouldInclude: true, ShouldBeTrue: &shouldBeFalse},
		},
	}

	assert.Equal(t, true, following.Match(user, Record{ObjectIdParam: "r1"}))
	assert.Equal(t, false, following.Match(user, Record{ObjectIdParam: "r3"}))
	assert.Equal(t, false, notFollowing.Match(user, Record{ObjectIdParam: "r1"}))
	assert.Equal(t, true, notFollowing.Match(user, Record{ObjectIdParam: "r3"}))
}

func TestSortNonDecreasing(t *testing.T) {
	records := []Record{
		{ObjectIdParam: "1", "name": "charlie"},
		{ObjectIdParam: "2", "name": "alice"},
		{ObjectIdParam: "3", "name": "bob"},
	}

	sorting := &SortSpec{ParamName: "name"}
	sorting.Sort(records)

	assert.Equal(t, "alice", records[0]["name"])
	assert.Equal(t, "bob", records[1]["name"])
	assert.Equal(t, "charlie", records[2]["name"])
}

func TestSortReverse(t *testing.T) {
	records := []Record{
		{ObjectIdParam: "1", "name": "alice"},
		{ObjectIdParam: "2", "name": "charlie"},
		{ObjectIdParam: "3", "name": "bob"},
	}

	sorting := &SortSpec{ParamName: "name", Reverse: true}
	sorting.Sort(records)

	assert.Equal(t, "charlie", records[0]["name"])
	assert.Equal(t, "bob", records[1]["name"])
	assert.Equal(t, "alice", records[2]["name"])
}

func TestSortFallbackParam(t *testing.T) {
	records := []Record{
		{ObjectIdParam: "1", "fullName": "zed"},
		{ObjectIdParam: "2", "username": "anna"},
	}

	sorting := &SortSpec{ParamName: "fullName", FallbackParamName: "username"}
	sorting.Sort(records)

	assert.Equal(t, "2", records[0].ObjectId())
	assert.Equal(t, "1", records[1].ObjectId())
}

func TestSortStableOnEqualKeys(t *testing.T) {
	records := []Record{
		{ObjectIdParam: "1", "name": "same"},
		{ObjectIdParam: "2", "name": "same"},
		{ObjectIdParam: "3", "name": "same"},
	}

	sorting := &SortSpec{ParamName: "name"}
	sorting.Sort(records)

	assert.Equal(t, "1", records[0].ObjectId())
	assert.Equal(t, "2", records[1].ObjectId())
	assert.Equal(t, "3", records[2].ObjectId())
}

func TestSortNumeric(t *testing.T) {
	records := []Record{
		{ObjectIdParam: "1", "amount": float64(100)},
		{ObjectIdParam: "2", "amount": float64(20)},
		{ObjectIdParam: "3", "amount": float64(3)},
	}

	sorting := &SortSpec{ParamName: "amount"}
	sorting.Sort(records)

	assert.Equal(t, "3", records[0].ObjectId())
	assert.Equal(t, "2", records[1].ObjectId())
	assert.Equal(t, "1", records[2].ObjectId())
}
