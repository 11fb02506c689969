package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dailyaed/internal/core"
)

func TestPaletteFor_PlainOffTerminal(t *testing.T) {
	assert.False(t, paletteFor(&bytes.Buffer{}).color)

	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	assert.False(t, paletteFor(f).color)

	p := palette{}
	assert.Equal(t, "Profit", p.Label("Profit"))
	assert.Equal(t, "-3.00 AED", p.Amount(core.Fils(-300), "-3.00 AED"))
}

func TestPalette_Styles(t *testing.T) {
	p := palette{color: true}
	assert.Equal(t, errorStyle.Render("-3.00 AED"), p.Amount(core.Fils(-300), "-3.00 AED"))
	assert.Equal(t, "3.00 AED", p.Amount(core.Fils(300), "3.00 AED"))
	assert.Equal(t, silentStyle.Render("(nothing recorded)"), p.Silent("(nothing recorded)"))
	assert.Equal(t, labelStyle.Render("Income"), p.Label("Income"))
}

func TestPrintRecord_NoEscapesInBuffers(t *testing.T) {
	var buf bytes.Buffer
	printRecord(&buf, core.DailyRecord{
		Date:     core.NewDate(2024, 3, 1),
		Expenses: core.Fils(500),
		Profit:   core.Fils(-500),
	})
	out := buf.String()
	assert.NotContains(t, out, "\x1b[")
	assert.Contains(t, out, "Profit         -5.00 AED")
	assert.Contains(t, out, "(nothing recorded)")
}
