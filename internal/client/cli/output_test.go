package cli

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCatch() models.Catch {
	lat, lon, temp := 59.43, 24.75, 14.5
	return models.Catch{
		ID:         "c-1",
		Species:    "pike",
		WeightKg:   3.2,
		LengthCm:   71,
		Latitude:   &lat,
		Longitude:  &lon,
		Location:   "Harku lake",
		Bait:       "spoon",
		Conditions: &models.Conditions{Weather: "overcast", TemperatureC: &temp, MoonPhase: "full"},
		CreatedAt:  time.Date(2024, 7, 1, 5, 0, 0, 0, time.UTC),
		SyncError:  true,
	}
}

func TestPrinter_Formats(t *testing.T) {
	c := sampleCatch()
	textCalled := false
	text := func(w io.Writer) error {
		textCalled = true
		_, err := io.WriteString(w, "text\n")
		return err
	}

	var b bytes.Buffer
	require.NoError(t, printer{format: FormatText, w: &b}.print(c, text))
	assert.True(t, textCalled)
	assert.Equal(t, "text\n", b.String())

	b.Reset()
	require.NoError(t, printer{format: FormatJSON, w: &b}.print(c, text))
	assert.True(t, strings.HasPrefix(b.String(), "{\n  \"id\": \"c-1\""), b.String())

	b.Reset()
	require.NoError(t, printer{format: FormatYAML, w: &b}.print(c, text))
	out := b.String()
	assert.True(t, strings.HasPrefix(out, "id: c-1\nspecies: pike\n"), out)
	assert.Contains(t, out, "weightKg: 3.2\n")
	assert.Contains(t, out, "createdAt: \"2024-07-01T05:00:00Z\"\n")
	assert.Contains(t, out, "conditions:\n  weather: overcast\n")
	assert.NotContains(t, out, "{")
}

func TestWriteCatchTable(t *testing.T) {
	c := sampleCatch()
	bare := models.Catch{ID: "c-2", Species: "perch", CreatedAt: c.CreatedAt, Synced: true}

	var b bytes.Buffer
	require.NoError(t, writeCatchTable(&b, []models.Catch{c, bare}))
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "3.2kg")
	assert.Contains(t, lines[1], "71cm")
	assert.Contains(t, lines[1], "error")
	assert.Contains(t, lines[2], "synced")
	assert.Contains(t, lines[2], "-")
}

func TestWriteCatch(t *testing.T) {
	var b bytes.Buffer
	require.NoError(t, writeCatch(&b, sampleCatch()))
	out := b.String()
	assert.Contains(t, out, "position:")
	assert.Contains(t, out, "59.43000, 24.75000")
	assert.Contains(t, out, "overcast, 14.5°C, moon full")
	assert.Contains(t, out, "bait:")
	assert.NotContains(t, out, "notes:")
}

func TestIsValidFormat(t *testing.T) {
	for _, f := range ValidFormats {
		assert.True(t, isValidFormat(f))
	}
	assert.False(t, isValidFormat("xml"))
}
