package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Headers: []string{"name", "price"},
		Rows: []map[string]string{
			{"name": "Maize", "price": "100"},
			{"name": "Yam", "price": "250"},
		},
		Summary: [][2]string{{"wallet", "650"}},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "name,price\nMaize,100\nYam,250\n\nwallet,650\n", string(out))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset(), "Holdings")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestExportersRequireHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	assert.Error(t, err)
	_, err = NewPDFExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}

func TestPDFExporterPaginatesLongTables(t *testing.T) {
	data := Dataset{Headers: []string{"a", "b", "c", "d", "e", "f"}}
	for i := 0; i < 120; i++ {
		data.Rows = append(data.Rows, map[string]string{"a": "row"})
	}
	out, err := NewPDFExporter().Render(data, "")
	require.NoError(t, err)
	assert.Greater(t, bytes.Count(out, []byte("/Type /Page\n")), 1)
}
