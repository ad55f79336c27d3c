package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/editais-cli/internal/model"
)

func titles(rs []model.Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Title)
	}
	return out
}

func TestFilterAndSort_KeywordAccentInsensitive(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		{Title: "Pavimentação asfáltica"},
		{Title: "Merenda", Description: "Aquisição de GÊNEROS alimentícios"},
		{Title: "Outro"},
	}

	assert.Equal(t, []string{"Pavimentação asfáltica"}, titles(FilterAndSort(records, "PAVIMENTACAO", model.BucketAll)))
	assert.Equal(t, []string{"Merenda"}, titles(FilterAndSort(records, "generos", model.BucketAll)))
	assert.Len(t, FilterAndSort(records, "", model.BucketAll), 3)
	assert.Len(t, FilterAndSort(records, "   ", model.BucketAll), 3)
}

func TestFilterAndSort_StatusBuckets(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		{Title: "open", StatusLabel: "A Receber/Recebendo Proposta"},
		{Title: "judging", StatusLabel: "Em Julgamento"},
		{Title: "closed", StatusLabel: "Encerrada"},
		{Title: "revoked", StatusLabel: "Revogada"},
		{Title: "unknown", StatusLabel: "Status novo"},
		{Title: "blank"},
	}

	assert.Equal(t, []string{"open", "unknown", "blank"}, titles(FilterAndSort(records, "", model.BucketOpen)))
	assert.Equal(t, []string{"judging", "unknown", "blank"}, titles(FilterAndSort(records, "", model.BucketJudging)))
	assert.Equal(t, []string{"closed", "revoked", "unknown", "blank"}, titles(FilterAndSort(records, "", model.BucketClosed)))
	assert.Len(t, FilterAndSort(records, "", model.BucketAll), 6)
	assert.Len(t, FilterAndSort(records, "", ""), 6)
}

func TestFilterAndSort_SortNewestFirstZeroLast(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time { return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC) }
	records := []model.Record{
		{Title: "nodate-1"},
		{Title: "d1", Published: day(1)},
		{Title: "d3", Published: day(3)},
		{Title: "nodate-2"},
		{Title: "d2", Published: day(2)},
		{Title: "d3-again", Published: day(3)},
	}

	got := titles(FilterAndSort(records, "", model.BucketAll))
	assert.Equal(t, []string{"d3", "d3-again", "d2", "d1", "nodate-1", "nodate-2"}, got)
}

func TestFilterAndSort_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	records := []model.Record{
		{Title: "old", Published: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Title: "new", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	_ = FilterAndSort(records, "", model.BucketAll)
	assert.Equal(t, "old", records[0].Title)
}
