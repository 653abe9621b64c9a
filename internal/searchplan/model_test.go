package searchplan

import (
	"encoding/json"
	"testing"

	"github.com/fidde/oxminer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() *models.SearchPlan {
	return &models.SearchPlan{
		Patterns: map[models.EventType]*models.PatternBundle{
			"place order": {
				Basic: []models.PatternID{"b1", "b2"},
				Interaction: map[models.ObjectType][]models.PatternID{
					"orders": {"p1", "p2"},
					"items":  {"p3"},
				},
				Custom: []models.PatternID{},
			},
			"pay order": {
				Basic:       []models.PatternID{"b3"},
				Interaction: map[models.ObjectType][]models.PatternID{},
				Custom:      []models.PatternID{"c1"},
			},
		},
	}
}

func TestLoad_CopiesAreNotAliased(t *testing.T) {
	source := testPlan()
	m := New()
	m.Load(source)

	require.Equal(t, m.Baseline(), m.Filtered())

	require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindCustom, ""))
	require.Equal(t, Applied, m.WriteExposedList([]models.PatternID{"x"}))

	assert.Equal(t, []models.PatternID{"x"}, m.ReadExposedList(true))
	assert.Empty(t, m.ReadExposedList(false), "baseline custom list must not change")

	// the caller's plan is not aliased either
	source.Patterns["place order"].Basic[0] = "mutated"
	require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindBasic, ""))
	assert.Equal(t, []models.PatternID{"b1", "b2"}, m.ReadExposedList(false))
	assert.Equal(t, []models.PatternID{"b1", "b2"}, m.ReadExposedList(true))
}

func TestLoad_ReplacesPreviousPlans(t *testing.T) {
	m := New()
	m.Load(testPlan())
	m.RegisterCustomPattern("place order", "c9")

	m.Load(testPlan())
	require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindCustom, ""))
	assert.Empty(t, m.ReadExposedList(true))
	assert.Empty(t, m.ReadExposedList(false))
}

func TestReadExposedList_Interaction(t *testing.T) {
	m := New()
	m.Load(testPlan())

	require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindInteraction, "orders"))
	assert.Equal(t, []models.PatternID{"p1", "p2"}, m.ReadExposedList(false))
	assert.Equal(t, []models.PatternID{"p1", "p2"}, m.ReadExposedList(true))

	unknown := New()
	unknown.Load(testPlan())
	require.Equal(t, Skipped, unknown.SelectCursor("place order", models.PatternKindInteraction, ""))
	assert.Equal(t, []models.PatternID{}, unknown.ReadExposedList(false))
	assert.Equal(t, []models.PatternID{}, unknown.ReadExposedList(true))
}

func TestSelectCursor_IncompleteKeepsPrevious(t *testing.T) {
	m := New()
	m.Load(testPlan())

	require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindInteraction, "items"))
	assert.Equal(t, Skipped, m.SelectCursor("place order", models.PatternKindInteraction, ""))
	assert.Equal(t, Skipped, m.SelectCursor("", models.PatternKindBasic, ""))
	assert.Equal(t, Skipped, m.SelectCursor("place order", "bogus", ""))

	assert.Equal(t, Cursor{EventType: "place order", PatternKind: models.PatternKindInteraction, ObjectType: "items"}, m.Cursor())
	assert.Equal(t, []models.PatternID{"p3"}, m.ReadExposedList(true))
}

func TestSelectCursor_DropsObjectTypeForFlatKinds(t *testing.T) {
	m := New()
	m.Load(testPlan())

	require.Equal(t, Applied, m.SelectCursor("pay order", models.PatternKindBasic, "orders"))
	assert.Equal(t, models.ObjectType(""), m.Cursor().ObjectType)
	assert.Equal(t, []models.PatternID{"b3"}, m.ReadExposedList(true))
}

func TestReadExposedList_ReturnsCopies(t *testing.T) {
	m := New()
	m.Load(testPlan())
	require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindBasic, ""))

	list := m.ReadExposedList(true)
	list[0] = "changed"
	assert.Equal(t, []models.PatternID{"b1", "b2"}, m.ReadExposedList(true))
}

func TestWriteExposedList(t *testing.T) {
	t.Run("incomplete cursor", func(t *testing.T) {
		m := New()
		m.Load(testPlan())
		assert.Equal(t, Skipped, m.WriteExposedList([]models.PatternID{"b1"}))
		assert.Equal(t, m.Baseline(), m.Filtered())
	})

	t.Run("unknown event type", func(t *testing.T) {
		m := New()
		m.Load(testPlan())
		require.Equal(t, Applied, m.SelectCursor("ship", models.PatternKindBasic, ""))
		assert.Equal(t, Skipped, m.WriteExposedList([]models.PatternID{"b1"}))
	})

	t.Run("interaction list", func(t *testing.T) {
		m := New()
		m.Load(testPlan())
		require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindInteraction, "orders"))
		assert.Equal(t, Applied, m.WriteExposedList([]models.PatternID{"p2"}))

		filtered := m.Filtered()
		assert.Equal(t, []models.PatternID{"p2"}, filtered.Patterns["place order"].Interaction["orders"])
		assert.Equal(t, []models.PatternID{"p3"}, filtered.Patterns["place order"].Interaction["items"])
		assert.Equal(t, []models.PatternID{"p1", "p2"}, m.Baseline().Patterns["place order"].Interaction["orders"])
	})

	t.Run("empty selection is applied", func(t *testing.T) {
		m := New()
		m.Load(testPlan())
		require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindBasic, ""))
		assert.Equal(t, Applied, m.WriteExposedList(nil))
		assert.Empty(t, m.ReadExposedList(true))
	})
}

func TestRegisterCustomPattern_Idempotent(t *testing.T) {
	m := New()
	m.Load(testPlan())

	assert.Equal(t, Applied, m.RegisterCustomPattern("place order", "p1"))
	assert.Equal(t, Skipped, m.RegisterCustomPattern("place order", "p1"))

	assert.Equal(t, []models.PatternID{"p1"}, m.Baseline().Patterns["place order"].Custom)
	assert.Equal(t, []models.PatternID{"p1"}, m.Filtered().Patterns["place order"].Custom)
}

func TestRegisterCustomPattern_ChecksEachListIndependently(t *testing.T) {
	m := New()
	m.Load(testPlan())

	// deselect c1 in the filtered plan only
	require.Equal(t, Applied, m.SelectCursor("pay order", models.PatternKindCustom, ""))
	require.Equal(t, Applied, m.WriteExposedList(nil))

	assert.Equal(t, Applied, m.RegisterCustomPattern("pay order", "c1"))
	assert.Equal(t, []models.PatternID{"c1"}, m.Baseline().Patterns["pay order"].Custom)
	assert.Equal(t, []models.PatternID{"c1"}, m.Filtered().Patterns["pay order"].Custom)
}

func TestRegisterCustomPattern_Preconditions(t *testing.T) {
	m := New()
	assert.Equal(t, Skipped, m.RegisterCustomPattern("place order", "p1"))

	m.Load(testPlan())
	assert.Equal(t, Skipped, m.RegisterCustomPattern("", "p1"))
	assert.Equal(t, Skipped, m.RegisterCustomPattern("place order", ""))
	assert.Equal(t, Skipped, m.RegisterCustomPattern("unknown", "p1"))
}

func TestReset(t *testing.T) {
	m := New()
	assert.Equal(t, Skipped, m.Reset())

	m.Load(testPlan())
	require.Equal(t, Applied, m.SelectCursor("place order", models.PatternKindBasic, ""))
	require.Equal(t, Applied, m.WriteExposedList(nil))

	assert.Equal(t, Applied, m.Reset())
	assert.Equal(t, []models.PatternID{"b1", "b2"}, m.ReadExposedList(true))
}

func TestOutcome_MarshalText(t *testing.T) {
	data, err := json.Marshal(map[string]Outcome{"a": Applied, "s": Skipped})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"applied","s":"skipped"}`, string(data))
}
