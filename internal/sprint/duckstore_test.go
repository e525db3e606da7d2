package sprint

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sprint-insights/backend/internal/models"
)

func strp(s string) *string { return &s }
func f64p(f float64) *float64 { return &f }
func i64p(i int64) *int64 { return &i }
func tsp(s string) *time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func testDataset() *Dataset {
	return &Dataset{
		Sprints: []Sprint{
			{Name: "S1", EntityIDs: []int64{1, 2, 3}},
			{Name: "S2", EntityIDs: []int64{4, 5}},
		},
		Entities: []Entity{
			{ID: 1, Status: strp("Создано"), Assignee: strp("A"), Estimation: f64p(7200), Spent: f64p(3600)},
			{ID: 2, Status: strp("В работе"), Assignee: strp("B"), Estimation: f64p(3600), Spent: f64p(0)},
			{ID: 3, Status: strp("Закрыто"), Assignee: strp("A"), Estimation: f64p(10800), Spent: f64p(14400)},
			{ID: 4, Status: strp("Выполнено"), Resolution: strp("Дубликат"), Assignee: strp("B"), Estimation: f64p(3600)},
			{ID: 5, Status: strp("Закрыто"), Resolution: strp("Готово"), Assignee: strp("A"), Estimation: f64p(1800), Spent: f64p(1800)},
		},
		History: []HistoryRow{
			{EntityID: 1, Date: tsp("2024-09-02 10:00"), Version: i64p(1)},
			{EntityID: 1, Date: tsp("2024-09-05 12:00"), Version: i64p(2)},
			{EntityID: 3, Date: tsp("2024-09-03 09:30"), Version: i64p(1)},
			{EntityID: 4, Date: tsp("2024-09-04 16:00"), Version: i64p(1)},
			{EntityID: 5, Date: tsp("2024-09-10 11:00"), Version: i64p(1)},
		},
	}
}

func newLoadedStore(t *testing.T, d *Dataset) *Store {
	t.Helper()
	store, err := NewStore(StoreOptions{}, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Load(context.Background(), d))
	return store
}

func TestStore_SprintMetrics(t *testing.T) {
	store := newLoadedStore(t, testDataset())

	got, err := store.SprintMetrics(context.Background(), nil)
	require.NoError(t, err)

	want := []models.SprintMetric{
		{SprintName: "S1", ToDoHours: 2, InProgressHours: 1, DoneHours: 3},
		{SprintName: "S2", DoneHours: 0.5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SprintMetrics mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SprintMetrics_Until(t *testing.T) {
	store := newLoadedStore(t, testDataset())

	until, err := ParseUntil("2024-09-06")
	require.NoError(t, err)

	got, err := store.SprintMetrics(context.Background(), until)
	require.NoError(t, err)

	// task 2 has no history and task 5 changed after the cut-off
	want := []models.SprintMetric{
		{SprintName: "S1", ToDoHours: 2, DoneHours: 3},
		{SprintName: "S2"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SprintMetrics mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SprintMetrics_UntilIsMidnight(t *testing.T) {
	d := &Dataset{
		Sprints: []Sprint{{Name: "S", EntityIDs: []int64{1, 2}}},
		Entities: []Entity{
			{ID: 1, Status: strp("В работе"), Estimation: f64p(3600)},
			{ID: 2, Status: strp("В работе"), Estimation: f64p(7200)},
		},
		History: []HistoryRow{
			{EntityID: 1, Date: tsp("2024-09-06 00:00"), Version: i64p(1)},
			{EntityID: 2, Date: tsp("2024-09-06 10:00"), Version: i64p(1)},
		},
	}
	store := newLoadedStore(t, d)

	until, err := ParseUntil("2024-09-06")
	require.NoError(t, err)

	got, err := store.SprintMetrics(context.Background(), until)
	require.NoError(t, err)
	require.Len(t, got, 1)
	// only the row at exactly 00:00 survives
	assert.Equal(t, 1.0, got[0].InProgressHours)
}

func TestStore_SprintMetrics_UndatedRowWins(t *testing.T) {
	d := &Dataset{
		Sprints:  []Sprint{{Name: "S", EntityIDs: []int64{1}}},
		Entities: []Entity{{ID: 1, Status: strp("В работе"), Estimation: f64p(3600)}},
		History: []HistoryRow{
			{EntityID: 1, Date: tsp("2024-09-02 10:00"), Version: i64p(1)},
			{EntityID: 1, Version: i64p(2)},
		},
	}
	store := newLoadedStore(t, d)

	got, err := store.SprintMetrics(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].InProgressHours)
}

func TestStore_SprintMetrics_CustomCategories(t *testing.T) {
	cats := &Categories{
		ToDo:       []string{"Создано", "Анализ"},
		InProgress: []string{"В работе"},
		Done:       []string{"Закрыто"},
	}
	store, err := NewStore(StoreOptions{Threads: 1, MemoryLimit: "256MB"}, cats, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	d := &Dataset{
		Sprints: []Sprint{{Name: "S", EntityIDs: []int64{1, 2}}},
		Entities: []Entity{
			{ID: 1, Status: strp("Анализ"), Estimation: f64p(3600)},
			{ID: 2, Status: strp("Выполнено"), Estimation: f64p(3600)},
		},
	}
	require.NoError(t, store.Load(context.Background(), d))

	got, err := store.SprintMetrics(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].ToDoHours)
	assert.Equal(t, 0.0, got[0].DoneHours)
}

func TestStore_AssigneeTotals(t *testing.T) {
	store := newLoadedStore(t, testDataset())
	ctx := context.Background()

	all, err := store.AssigneeTotals(ctx, "")
	require.NoError(t, err)
	want := []AssigneeTotals{
		{Assignee: "A", EstimationSeconds: 19800, SpentSeconds: 19800},
		{Assignee: "B", EstimationSeconds: 7200, SpentSeconds: 0},
	}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("AssigneeTotals mismatch (-want +got):\n%s", diff)
	}

	s2, err := store.AssigneeTotals(ctx, "S2")
	require.NoError(t, err)
	want = []AssigneeTotals{
		{Assignee: "A", EstimationSeconds: 1800, SpentSeconds: 1800},
		{Assignee: "B", EstimationSeconds: 3600, SpentSeconds: 0},
	}
	if diff := cmp.Diff(want, s2); diff != "" {
		t.Errorf("AssigneeTotals(S2) mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_StatusDistribution(t *testing.T) {
	store := newLoadedStore(t, testDataset())

	shares, err := store.StatusDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, shares, 4)

	assert.Equal(t, "Закрыто", shares[0].Status)
	assert.Equal(t, 2, shares[0].Count)
	assert.Equal(t, 40.0, shares[0].Percent)

	var total float64
	for _, s := range shares {
		total += s.Percent
	}
	assert.InDelta(t, 100.0, total, 0.001)
}

func TestStore_Analyze(t *testing.T) {
	store := newLoadedStore(t, testDataset())

	result, err := store.Analyze(context.Background(), AnalyzeOptions{Sprint: "S1"})
	require.NoError(t, err)

	assert.Equal(t, 5, result.EntityCount)
	assert.Equal(t, 5, result.HistoryCount)
	assert.Len(t, result.Sprints, 2)
	// S1: A 18000s/18000s, B 3600s/0s
	want := []models.AssigneeDeviation{
		{Assignee: "A", Estimation: 5, Spent: 5, Remaining: 0, Procent: 0, Category: 0},
		{Assignee: "B", Estimation: 1, Spent: 0, Remaining: 1, Procent: -100, Category: NoTimeSpent},
	}
	if diff := cmp.Diff(want, result.Assignees); diff != "" {
		t.Errorf("Assignees mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"S1", "S2"}, store.Sprints())
}

func TestStore_LoadTwice(t *testing.T) {
	store := newLoadedStore(t, testDataset())
	err := store.Load(context.Background(), testDataset())
	assert.Error(t, err)
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	store, err := NewStore(StoreOptions{}, nil, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.NoError(t, store.Close())
	assert.Error(t, store.Load(context.Background(), &Dataset{}))
}
