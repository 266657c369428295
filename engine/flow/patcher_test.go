package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPatcher(t *testing.T, strategy string) *Patcher {
	t.Helper()
	s, err := LookupStrategy(strategy)
	require.NoError(t, err)
	p, err := NewPatcher(s, DefaultOptions())
	require.NoError(t, err)
	return p
}

func TestPatcher_Rebuild(t *testing.T) {
	t.Run("Should detach the nested catch and inject both scopes", func(t *testing.T) {
		doc := loadFixture(t, "broken_flow.json")

		report, err := newPatcher(t, StrategyRebuild).Apply(t.Context(), doc)

		require.NoError(t, err)
		assert.Equal(t, StrategyRebuild, report.Strategy)
		assert.Equal(t, []Change{
			{Step: StepDetachNestedCatch, Message: "Removed Catch_Scope from inside Try_Scope"},
			{Step: StepInjectCatch, Message: "Added Catch_Scope at top level"},
			{Step: StepInjectStatusFinally, Message: "Added Finally_Scope at top level"},
		}, report.Changes)
		assert.Empty(t, report.Skipped)
		assert.Equal(t, []string{
			"Initialize_ScanSessionId", "Initialize_HasError", "Try_Scope", "Respond", "Catch_Scope", "Finally_Scope",
		}, doc.ActionNames())
		assert.False(t, doc.Has("Try_Scope", "Catch_Scope"))
		assert.True(t, doc.Has("Catch_Scope", ActionGetErrorDetails))
		assert.True(t, doc.Has("Finally_Scope", ActionCheckNoError))

		v, err := Verify(doc, DefaultOptions().Scopes)
		require.NoError(t, err)
		assert.True(t, v.Valid, v.Issues)
	})

	t.Run("Should be idempotent on an already repaired flow", func(t *testing.T) {
		doc := loadFixture(t, "broken_flow.json")
		p := newPatcher(t, StrategyRebuild)
		_, err := p.Apply(t.Context(), doc)
		require.NoError(t, err)
		first := string(doc.Bytes())

		report, err := p.Apply(t.Context(), doc)

		require.NoError(t, err)
		assert.Equal(t, []string{StepDetachNestedCatch}, report.Skipped)
		assert.Equal(t, "Replaced Catch_Scope at top level", report.Changes[0].Message)
		assert.Equal(t, first, string(doc.Bytes()))
	})

	t.Run("Should fail when the try scope is missing", func(t *testing.T) {
		doc, err := Parse([]byte(`{"properties":{"definition":{"actions":{"A":{}}}}}`), "")
		require.NoError(t, err)

		_, err = newPatcher(t, StrategyRebuild).Apply(t.Context(), doc)

		require.ErrorIs(t, err, ErrTryScopeMissing)
	})
}

func TestPatcher_Relocate(t *testing.T) {
	t.Run("Should move the nested catch next to the try scope", func(t *testing.T) {
		doc := loadFixture(t, "broken_flow.json")

		report, err := newPatcher(t, StrategyRelocate).Apply(t.Context(), doc)

		require.NoError(t, err)
		assert.Len(t, report.Changes, 4)
		assert.Equal(t, []string{
			"Initialize_ScanSessionId", "Initialize_HasError", "Respond", "Try_Scope", "Catch_Scope", "Finally_Scope",
		}, doc.ActionNames())
		catch, ok := doc.Get("Catch_Scope")
		require.True(t, ok)
		assert.JSONEq(t, `{"Try_Scope":["Failed","TimedOut"]}`, catch.Get("runAfter").Raw)
		assert.True(t, catch.Get("actions.Log_Failure").Exists())
		assert.True(t, doc.Has("Finally_Scope", ActionConditionCheckError))

		v, err := Verify(doc, DefaultOptions().Scopes)
		require.NoError(t, err)
		assert.True(t, v.Valid, v.Issues)
	})

	t.Run("Should refuse a flow whose catch is not nested", func(t *testing.T) {
		doc := loadFixture(t, "broken_flow.json")
		require.NoError(t, doc.Delete("Try_Scope", "Catch_Scope"))
		before := string(doc.Raw())

		_, err := newPatcher(t, StrategyRelocate).Apply(t.Context(), doc)

		require.ErrorIs(t, err, ErrCatchNotNested)
		require.ErrorIs(t, err, ErrNotApplicable)
		assert.Equal(t, before, string(doc.Raw()))
	})
}

func TestPatcher_Context(t *testing.T) {
	t.Run("Should stop on a canceled context without touching the document", func(t *testing.T) {
		doc := loadFixture(t, "broken_flow.json")
		before := string(doc.Raw())
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := newPatcher(t, StrategyRebuild).Apply(ctx, doc)

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, before, string(doc.Raw()))
	})
}

func TestRegistry(t *testing.T) {
	t.Run("Should reject unknown names", func(t *testing.T) {
		_, err := LookupStrategy("rewrite")
		require.ErrorIs(t, err, ErrUnknownStrategy)
		_, err = LookupStep("nope")
		require.ErrorIs(t, err, ErrUnknownStep)
	})

	t.Run("Should reject strategies referencing unknown steps", func(t *testing.T) {
		_, err := NewPatcher(Strategy{Name: "custom", Steps: []StrategyStep{{ID: "nope"}}}, DefaultOptions())
		require.ErrorIs(t, err, ErrUnknownStep)
	})

	t.Run("Should resolve every step of every strategy", func(t *testing.T) {
		for _, s := range Strategies() {
			_, err := NewPatcher(s, DefaultOptions())
			assert.NoError(t, err, s.Name)
		}
		assert.Len(t, Steps(), 6)
	})
}
