package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/compozy/flowfix/pkg/config"
)

func loadView(t *testing.T, showSources bool) *View {
	t.Helper()
	service := config.NewService()
	cfg, err := service.Load(t.Context(), config.NewDefaultProvider(), config.NewCLIProvider(map[string]any{
		"strategy": "relocate",
	}))
	require.NoError(t, err)
	view, err := NewView(cfg, service, showSources)
	require.NoError(t, err)
	return view
}

func TestNewView(t *testing.T) {
	t.Run("Should flatten the configuration into dotted keys", func(t *testing.T) {
		view := loadView(t, false)

		assert.Equal(t, "relocate", view.Config["flow.strategy"])
		assert.Equal(t, "Try_Scope", view.Config["flow.try_scope"])
		assert.Equal(t, "5s", view.Config["package.lock_timeout"])
		assert.Nil(t, view.Sources)
	})

	t.Run("Should keep dotted extra parameter names in one entry", func(t *testing.T) {
		cfg := config.Default()
		cfg.Session.ExtraParameters = map[string]any{"item/sp_ScanOwner@odata.bind": "/systemusers(1)"}

		view, err := NewView(cfg, config.NewService(), false)

		require.NoError(t, err)
		assert.Equal(t, map[string]any{"item/sp_ScanOwner@odata.bind": "/systemusers(1)"}, view.Config["session.extra_parameters"])
		for key := range view.Config {
			assert.NotContains(t, key, "odata")
		}
	})

	t.Run("Should attach sources when asked", func(t *testing.T) {
		view := loadView(t, true)

		assert.Equal(t, config.SourceCLI, view.Sources["flow.strategy"])
		assert.Equal(t, config.SourceDefault, view.Sources["session.entity_name"])
	})
}

func TestOutputTable(t *testing.T) {
	t.Run("Should print sorted rows with a source column", func(t *testing.T) {
		view := &View{
			Config:  map[string]any{"flow.strategy": "rebuild", "cli.format": "auto"},
			Sources: map[string]config.SourceType{"flow.strategy": config.SourceYAML, "cli.format": config.SourceDefault},
		}
		var buf bytes.Buffer

		require.NoError(t, outputTable(&buf, view))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 4)
		assert.Equal(t, []string{"KEY", "VALUE", "SOURCE"}, strings.Fields(lines[0]))
		assert.Equal(t, []string{"cli.format", "auto", "default"}, strings.Fields(lines[2]))
		assert.Equal(t, []string{"flow.strategy", "rebuild", "yaml"}, strings.Fields(lines[3]))
	})
}

func TestOutputYAML(t *testing.T) {
	t.Run("Should emit the view as YAML", func(t *testing.T) {
		var buf bytes.Buffer

		require.NoError(t, outputYAML(&buf, &View{Config: map[string]any{"flow.strategy": "rebuild"}}))

		var decoded map[string]map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, "rebuild", decoded["config"]["flow.strategy"])
		assert.NotContains(t, decoded, "sources")
	})
}
