package sprint

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectKind(t *testing.T) {
	tests := []struct {
		header []string
		want   TableKind
	}{
		{[]string{"entity_id", "status", "estimation", "spent"}, KindEntities},
		{[]string{"entity_id", "history_date", "history_version"}, KindHistory},
		{[]string{"sprint_name", "sprint_status", "entity_ids"}, KindSprints},
		{[]string{"entity_id", "status"}, KindUnknown},
		{nil, KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectKind(tt.header), "header %v", tt.header)
	}
}

func TestParseEntityIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    []int64
		wantErr bool
	}{
		{"{1, 2, 3}", []int64{1, 2, 3}, false},
		{"[4,5]", []int64{4, 5}, false},
		{"{7, 7, 8}", []int64{7, 8}, false},
		{"9", []int64{9}, false},
		{"{10.0}", []int64{10}, false},
		{"set()", nil, false},
		{"", nil, false},
		{"<empty>", nil, false},
		{"{1, x}", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseEntityIDs(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseHistoryDate(t *testing.T) {
	got := ParseHistoryDate("9/3/24 14:05")
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 9, 3, 14, 5, 0, 0, time.UTC), *got)

	got = ParseHistoryDate("2024-09-03 14:05:30")
	require.NotNil(t, got)
	assert.Equal(t, 30, got.Second())

	assert.Nil(t, ParseHistoryDate(""))
	assert.Nil(t, ParseHistoryDate("<empty>"))
	assert.Nil(t, ParseHistoryDate("yesterday"))
}

func TestParseUntil(t *testing.T) {
	until, err := ParseUntil("2024-09-06")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 9, 6, 0, 0, 0, 0, time.UTC), *until)

	until, err = ParseUntil("")
	require.NoError(t, err)
	assert.Nil(t, until)

	_, err = ParseUntil("06.09.2024")
	assert.Error(t, err)
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(""))
	assert.True(t, IsNull("  "))
	assert.True(t, IsNull("<empty>"))
	assert.False(t, IsNull("0"))
}

func TestDataset_AddExport(t *testing.T) {
	var d Dataset

	kind, err := d.AddExport("tasks.csv", strings.NewReader(
		"banner\nentity_id;status;resolution;estimation;spent;assignee\n"+
			"1;Закрыто;<empty>;3600;1800,5;Иванов И.\n"+
			"x;Создано;;;;\n"+
			"2;Создано;;;;\n"+
			"2;Создано;;;;\n"))
	require.NoError(t, err)
	assert.Equal(t, KindEntities, kind)
	require.Len(t, d.Entities, 2)
	assert.Nil(t, d.Entities[0].Resolution)
	assert.Equal(t, 1800.5, *d.Entities[0].Spent)
	assert.Equal(t, "Иванов И.", *d.Entities[0].Assignee)
	assert.Nil(t, d.Entities[1].Estimation)

	kind, err = d.AddExport("history.csv", strings.NewReader(
		"banner\nentity_id;history_date;history_version\n1;9/3/24 14:05;2\n1;bad date;\n"))
	require.NoError(t, err)
	assert.Equal(t, KindHistory, kind)
	require.Len(t, d.History, 2)
	assert.Equal(t, int64(2), *d.History[0].Version)
	assert.Nil(t, d.History[1].Date)
	assert.Nil(t, d.History[1].Version)

	kind, err = d.AddExport("sprints.csv", strings.NewReader(
		"banner\nsprint_name;entity_ids\nS1;{1, 2}\n;{3}\nS2;{1, oops}\n"))
	require.NoError(t, err)
	assert.Equal(t, KindSprints, kind)
	assert.Equal(t, []string{"S1", "S2"}, d.SprintNames())
	assert.Empty(t, d.Sprints[1].EntityIDs)

	kind, err = d.AddExport("other.csv", strings.NewReader("banner\nfoo;bar\n1;2\n"))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, kind)

	// invalid entity id, missing sprint name, bad sprint ids, unknown table
	assert.Len(t, d.Warnings, 4)

	_, err = d.AddExport("empty.csv", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyTable)
}
