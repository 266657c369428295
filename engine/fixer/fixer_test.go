package fixer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/compozy/flowfix/engine/flow"
	"github.com/compozy/flowfix/engine/solution"
	"github.com/compozy/flowfix/pkg/config"
)

const (
	scannerEntry = "Workflows/ScanFolderPermissions-1A2B3C4D-0000-4000-8000-000000000001.json"
	helperEntry  = "Workflows/NotifyOwners-1A2B3C4D-0000-4000-8000-000000000002.json"
	helperFlow   = `{"properties":{"definition":{"actions":{"Notify":{"runAfter":{},"type":"Compose","inputs":"hi"}}}}}`
)

func brokenFlow(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "flow", "testdata", "broken_flow.json"))
	require.NoError(t, err)
	return data
}

func writeSolution(t *testing.T, fs afero.Fs, path string, entries map[string][]byte, order ...string) {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range order {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(entries[name])
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0o644))
}

func newFixer(t *testing.T, fs afero.Fs, mutate ...func(*config.Config)) *Fixer {
	t.Helper()
	cfg := config.Default()
	for _, m := range mutate {
		m(cfg)
	}
	f, err := New(fs, cfg)
	require.NoError(t, err)
	return f
}

func TestNew(t *testing.T) {
	t.Run("Should reject an unknown strategy", func(t *testing.T) {
		cfg := config.Default()
		cfg.Flow.Strategy = "shuffle"

		_, err := New(afero.NewMemMapFs(), cfg)

		assert.ErrorIs(t, err, flow.ErrUnknownStrategy)
	})
}

func TestFixer_FixDefinition(t *testing.T) {
	t.Run("Should rebuild the scopes and pass verification", func(t *testing.T) {
		f := newFixer(t, afero.NewMemMapFs())

		res, err := f.FixDefinition(t.Context(), brokenFlow(t))

		require.NoError(t, err)
		assert.True(t, res.Verification.Valid, res.Verification.Issues)
		assert.Equal(t, flow.StrategyRebuild, res.Report.Strategy)
		actions := gjson.GetBytes(res.Output, "properties.definition.actions")
		assert.False(t, actions.Get("Try_Scope.actions.Catch_Scope").Exists())
		assert.Equal(t, "Scope", actions.Get("Catch_Scope.type").String())
		assert.Equal(t, "Scope", actions.Get("Finally_Scope.type").String())
	})

	t.Run("Should relocate the nested catch with the relocate strategy", func(t *testing.T) {
		f := newFixer(t, afero.NewMemMapFs(), func(cfg *config.Config) { cfg.Flow.Strategy = flow.StrategyRelocate })

		res, err := f.FixDefinition(t.Context(), brokenFlow(t))

		require.NoError(t, err)
		assert.True(t, res.Verification.Valid, res.Verification.Issues)
		actions := gjson.GetBytes(res.Output, "properties.definition.actions")
		assert.True(t, actions.Get("Catch_Scope.actions.Log_Failure").Exists())
		assert.JSONEq(t, `{"Try_Scope":["Failed","TimedOut"]}`, actions.Get("Catch_Scope.runAfter").Raw)
	})

	t.Run("Should fail when the flow has no try scope", func(t *testing.T) {
		f := newFixer(t, afero.NewMemMapFs())

		_, err := f.FixDefinition(t.Context(), []byte(helperFlow))

		assert.ErrorIs(t, err, flow.ErrTryScopeMissing)
	})

	t.Run("Should reject malformed JSON", func(t *testing.T) {
		f := newFixer(t, afero.NewMemMapFs())

		_, err := f.FixDefinition(t.Context(), []byte(`{"properties":`))

		assert.ErrorIs(t, err, flow.ErrInvalidJSON)
	})
}

func TestFixer_VerifyDefinition(t *testing.T) {
	t.Run("Should report the nested catch of an unfixed flow", func(t *testing.T) {
		f := newFixer(t, afero.NewMemMapFs())

		v, err := f.VerifyDefinition(brokenFlow(t))

		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Contains(t, v.Issues, "Catch_Scope must not be nested inside Try_Scope")
	})
}

func TestFixer_FixPackage(t *testing.T) {
	entries := func(t *testing.T) map[string][]byte {
		return map[string][]byte{
			"solution.xml": []byte("<ImportExportXml/>"),
			scannerEntry:   brokenFlow(t),
			helperEntry:    []byte(helperFlow),
		}
	}

	t.Run("Should pick the workflow holding the try scope and replace only that entry", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeSolution(t, fs, "/work/Scanner.zip", entries(t), "solution.xml", helperEntry, scannerEntry)
		f := newFixer(t, fs)

		res, err := f.FixPackage(t.Context(), PackageRequest{Source: "/work/Scanner.zip", Output: "/work/Scanner_FIXED.zip"})

		require.NoError(t, err)
		assert.Equal(t, scannerEntry, res.Workflow)
		assert.Equal(t, []string{scannerEntry}, res.Package.Replaced)
		assert.Equal(t, 3, res.Package.Entries)

		out, err := solution.Open(fs, "/work/Scanner_FIXED.zip")
		require.NoError(t, err)
		defer out.Close()
		assert.Equal(t, []string{"solution.xml", helperEntry, scannerEntry}, out.Entries())
		helper, err := out.ReadEntry(helperEntry)
		require.NoError(t, err)
		assert.Equal(t, helperFlow, string(helper))
		fixed, err := out.ReadEntry(scannerEntry)
		require.NoError(t, err)
		v, err := f.VerifyDefinition(fixed)
		require.NoError(t, err)
		assert.True(t, v.Valid, v.Issues)
	})

	t.Run("Should not write anything on a dry run", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeSolution(t, fs, "/work/Scanner.zip", entries(t), "solution.xml", scannerEntry)
		f := newFixer(t, fs)

		res, err := f.FixPackage(t.Context(), PackageRequest{
			Source: "/work/Scanner.zip", Output: "/work/out.zip", DryRun: true,
		})

		require.NoError(t, err)
		assert.True(t, res.DryRun)
		assert.Nil(t, res.Package)
		exists, err := afero.Exists(fs, "/work/out.zip")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Should honor an explicit workflow file name", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeSolution(t, fs, "/work/Scanner.zip", entries(t), helperEntry, scannerEntry)
		f := newFixer(t, fs)

		_, err := f.FixPackage(t.Context(), PackageRequest{
			Source:   "/work/Scanner.zip",
			Output:   "/work/out.zip",
			Workflow: "NotifyOwners-1A2B3C4D-0000-4000-8000-000000000002.json",
		})

		assert.ErrorIs(t, err, flow.ErrTryScopeMissing)
	})

	t.Run("Should fail when no entry matches the pattern", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeSolution(t, fs, "/work/Empty.zip", map[string][]byte{"solution.xml": []byte("<x/>")}, "solution.xml")
		f := newFixer(t, fs)

		_, err := f.FixPackage(t.Context(), PackageRequest{Source: "/work/Empty.zip", Output: "/work/out.zip"})

		assert.ErrorIs(t, err, solution.ErrNoWorkflow)
	})

	t.Run("Should stop on a canceled context", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeSolution(t, fs, "/work/Scanner.zip", entries(t), scannerEntry)
		f := newFixer(t, fs)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		_, err := f.FixPackage(ctx, PackageRequest{Source: "/work/Scanner.zip", Output: "/work/out.zip"})

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFixer_Splice(t *testing.T) {
	t.Run("Should replace the named entry", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeSolution(t, fs, "/work/Scanner.zip", map[string][]byte{scannerEntry: []byte("{}")}, scannerEntry)
		f := newFixer(t, fs)

		res, err := f.Splice(t.Context(), "/work/Scanner.zip", "/work/out.zip", scannerEntry, []byte(`{"a":1}`))

		require.NoError(t, err)
		assert.Equal(t, []string{scannerEntry}, res.Replaced)
	})
}
