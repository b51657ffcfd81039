package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() Dataset {
	return Dataset{
		Columns: []Column{
			{Key: "date", Title: "Date"},
			{Key: "job_name", Title: "Job", Weight: 2},
			{Key: "affected_count", Title: "Affected"},
			{Key: "compiled_filter", Title: "Filter", Weight: 4},
		},
		Rows: []map[string]string{
			{"date": "2024-01-02T03:04:05Z", "job_name": "Receipts", "affected_count": "3", "compiled_filter": "in:inbox (label:receipts)"},
		},
	}
}

func TestCSVRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset(), "")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Job,Affected,Filter", lines[0])
	assert.Equal(t, "2024-01-02T03:04:05Z,Receipts,3,in:inbox (label:receipts)", lines[1])
}

func TestCSVRequiresColumns(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	assert.Error(t, err)
}

func TestPDFRender(t *testing.T) {
	data := sampleDataset()
	data.Rows = append(data.Rows, map[string]string{"compiled_filter": strings.Repeat("from:someone-long ", 40)})

	out, err := NewPDFExporter().Render(data, "Run history")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestColumnWidthsFillPage(t *testing.T) {
	widths := columnWidths(sampleDataset().Columns)
	total := 0.0
	for _, w := range widths {
		total += w
	}
	assert.InDelta(t, pdfUsableWidth, total, 0.001)
	assert.InDelta(t, widths[0]*4, widths[3], 0.001)
}
