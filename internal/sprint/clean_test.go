package sprint

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const entitiesExport = "Выгрузка задач;;;\n" +
	"entity_id;status;estimation;assignee\n" +
	"1;Создано;3600;Иванов И.\n" +
	"2;В работе;7200;Петрова А.\n" +
	"1;Создано;3600;Иванов И.\n" +
	";;;\n" +
	"3;<empty>;;\n"

func TestCleanCSV(t *testing.T) {
	var out bytes.Buffer
	stats, err := CleanCSV(strings.NewReader(entitiesExport), &out)
	require.NoError(t, err)

	assert.Equal(t, CleanStats{RowsIn: 5, RowsOut: 3, Duplicates: 1, EmptyRows: 1}, stats)
	assert.Equal(t,
		"entity_id,status,estimation,assignee\n"+
			"1,Создано,3600,Иванов И.\n"+
			"2,В работе,7200,Петрова А.\n"+
			"3,<empty>,,\n",
		out.String())
}

func TestCleanCSV_QuotesFieldsWithCommas(t *testing.T) {
	in := "banner\nname;note\nA;\"one, two\"\n"
	var out bytes.Buffer
	_, err := CleanCSV(strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, "name,note\nA,\"one, two\"\n", out.String())
}

func TestCleanCSV_PadsShortRows(t *testing.T) {
	in := "banner\na;b;c\n1;2\n"
	var out bytes.Buffer
	stats, err := CleanCSV(strings.NewReader(in), &out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RowsOut)
	assert.Equal(t, "a,b,c\n1,2,\n", out.String())
}

func TestCleanCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		empty bool
	}{
		{"empty input", "", true},
		{"banner only", "banner\n", true},
		{"header only", "banner\na;b\n", true},
		{"only empty rows", "banner\na;b\n;\n<empty>;\n", true},
		{"too many fields", "banner\na;b\n1;2;3\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := CleanCSV(strings.NewReader(tt.input), &out)
			require.Error(t, err)
			assert.Equal(t, tt.empty, errors.Is(err, ErrEmptyTable))
		})
	}
}

func TestReadExport_StripsBOMAndSpaces(t *testing.T) {
	table, err := ReadExport(strings.NewReader("banner\n\ufeffentity_id ; status\n1;Создано\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"entity_id", "status"}, table.Header)
	assert.Equal(t, 1, table.Column("status"))
	assert.Equal(t, -1, table.Column("missing"))
}
