package generate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	replacements := map[string]string{
		"batch-size": "64",
		"epochs":     "3",
	}

	out, err := renderTemplate("train --batch {batch-size} --epochs {epochs}", replacements)
	require.NoError(t, err)
	require.Equal(t, "train --batch 64 --epochs 3", out)

	out, err = renderTemplate("no placeholders here", nil)
	require.NoError(t, err)
	require.Equal(t, "no placeholders here", out)
}

func TestRenderTemplateEscapedBraces(t *testing.T) {
	out, err := renderTemplate("awk '{{print $1}}' f | head -{epochs}",
		map[string]string{"epochs": "3"})
	require.NoError(t, err)
	require.Equal(t, "awk '{print $1}' f | head -3", out)
}

func TestRenderTemplateMissingPlaceholders(t *testing.T) {
	_, err := renderTemplate("run {zeta} {alpha}", nil)
	require.Error(t, err)
	require.Equal(t, "unresolved placeholders {alpha}, {zeta}", err.Error())
}

func TestFormatValue(t *testing.T) {
	require.Equal(t, "64", formatValue(float64(64)))
	require.Equal(t, "0.01", formatValue(float64(0.01)))
	require.Equal(t, "adamw", formatValue("adamw"))
	require.Equal(t, "true", formatValue(true))
}
