package directory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/status"
	"github.com/warp/court-roster/store/memory"
)

func day(s string) roster.Date { return roster.MustParseDate(s) }

func newDirectory(t *testing.T, opts ...memory.Option) *directory.Directory {
	t.Helper()
	dir, err := directory.New(context.Background(), memory.New(opts...), zap.NewNop())
	require.NoError(t, err)
	return dir
}

// =============================================================================
// UPSERT
// =============================================================================

func TestUpsert_FullSchema(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	result, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{
		Email: "jsmith@court.example", CapacityTag: "Supervisor", Division: "North", Rank: "Sergeant",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, directory.UpsertSuccess, result.Status)
	assert.Equal(t, directory.Capabilities{Division: true, Rank: true}, result.Persisted)
	assert.Empty(t, result.Dropped)

	dep, err := dir.Get(ctx, "Jane Smith")
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, "North", dep.Division)
	assert.Equal(t, "Sergeant", dep.Rank)
}

func TestUpsert_SchemaWithoutRank(t *testing.T) {
	ctx := context.Background()

	// GIVEN: A deployment whose deputies table predates the rank column
	dir := newDirectory(t, memory.WithCapabilities(directory.Capabilities{Division: true}))

	// WHEN: Upserting with both division and rank
	result, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{
		CapacityTag: "Supervisor", Division: "North", Rank: "Sergeant",
	}, "")

	// THEN: No error; rank reported as not persisted
	require.NoError(t, err)
	assert.Equal(t, directory.UpsertSuccess, result.Status)
	assert.True(t, result.Persisted.Division)
	assert.False(t, result.Persisted.Rank)
	assert.Equal(t, []string{"rank"}, result.Dropped)

	// AND: The rest is stored
	dep, err := dir.Get(ctx, "Jane Smith")
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, "North", dep.Division)
	assert.Equal(t, "Supervisor", dep.CapacityTag)
	assert.Equal(t, "", dep.Rank)
}

func TestUpsert_SchemaWithoutOptionalColumns(t *testing.T) {
	dir := newDirectory(t, memory.WithCapabilities(directory.Capabilities{}))

	result, err := dir.Upsert(context.Background(), "Jane Smith", directory.Attrs{Division: "North", Rank: "Sergeant"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"division", "rank"}, result.Dropped)
	assert.False(t, dir.Capabilities().Full())
}

func TestUpsert_RenameByOriginalName(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	_, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{Email: "old@court.example"}, "")
	require.NoError(t, err)
	_, err = dir.SetLegacyStatus(ctx, "Jane Smith", "On Duty")
	require.NoError(t, err)

	// WHEN: Renaming, addressed by the old name
	result, err := dir.Upsert(ctx, "Jane Smith-Lee", directory.Attrs{Email: "new@court.example"}, "Jane Smith")
	require.NoError(t, err)
	assert.Equal(t, directory.UpsertSuccess, result.Status)

	// THEN: Old name gone, new name carries the attributes and the status
	old, err := dir.Get(ctx, "Jane Smith")
	require.NoError(t, err)
	assert.Nil(t, old)

	dep, err := dir.Get(ctx, "Jane Smith-Lee")
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, "new@court.example", dep.Email)
	assert.Equal(t, "On Duty", dep.Status.Legacy)
}

func TestUpsert_UnknownOriginalNameIsNotFound(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	result, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{}, "Nobody")
	require.NoError(t, err)
	assert.Equal(t, directory.UpsertNotFound, result.Status)

	list, err := dir.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpsert_InsertKeepsExistingStatus(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	_, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{}, "")
	require.NoError(t, err)
	_, err = dir.SetLegacyStatus(ctx, "Jane Smith", "Light Duty")
	require.NoError(t, err)

	_, err = dir.Upsert(ctx, "Jane Smith", directory.Attrs{Email: "js@court.example"}, "")
	require.NoError(t, err)

	dep, err := dir.Get(ctx, "Jane Smith")
	require.NoError(t, err)
	require.NotNil(t, dep)
	assert.Equal(t, "Light Duty", dep.Status.Legacy)
	assert.Equal(t, "js@court.example", dep.Email)
}

func TestUpsert_RequiresName(t *testing.T) {
	_, err := newDirectory(t).Upsert(context.Background(), "  ", directory.Attrs{}, "")
	assert.ErrorIs(t, err, roster.ErrInvalidInput)
}

// =============================================================================
// STATUS
// =============================================================================

func TestStatus_RangesAndLegacy(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	_, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{}, "")
	require.NoError(t, err)

	_, err = dir.SetLegacyStatus(ctx, "Jane Smith", "On Duty")
	require.NoError(t, err)
	found, err := dir.AddStatusRange(ctx, "Jane Smith", status.Range{Status: "Vacation", StartDate: "2024-07-01", EndDate: "2024-07-14"})
	require.NoError(t, err)
	assert.True(t, found)

	tests := []struct {
		name string
		on   roster.Date
		want string
	}{
		{"inside range", day("2024-07-03"), "Vacation"},
		{"range end inclusive", day("2024-07-14"), "Vacation"},
		{"outside range", day("2024-07-15"), "On Duty"},
		{"no date", roster.Date{}, "On Duty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := dir.EffectiveStatus(ctx, "Jane Smith", tt.on)
			require.NoError(t, err)
			require.NotNil(t, view)
			assert.Equal(t, tt.want, view.Status)
			assert.True(t, view.HasStatus)
		})
	}
}

func TestStatus_RemoveRange(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	_, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{}, "")
	require.NoError(t, err)

	r := status.Range{Status: "Training", StartDate: "2024-08-01", EndDate: "2024-08-02"}
	_, err = dir.AddStatusRange(ctx, "Jane Smith", r)
	require.NoError(t, err)
	_, err = dir.RemoveStatusRange(ctx, "Jane Smith", r)
	require.NoError(t, err)

	view, err := dir.EffectiveStatus(ctx, "Jane Smith", day("2024-08-01"))
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.False(t, view.HasStatus)
	assert.True(t, view.Payload.IsEmpty())
}

func TestStatus_InvalidRangeRejected(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	_, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{}, "")
	require.NoError(t, err)

	tests := []status.Range{
		{Status: "", StartDate: "2024-08-01", EndDate: "2024-08-02"},
		{Status: "Sick", StartDate: "08/01/2024", EndDate: "2024-08-02"},
		{Status: "Sick", StartDate: "2024-08-05", EndDate: "2024-08-02"},
	}
	for _, r := range tests {
		_, err := dir.AddStatusRange(ctx, "Jane Smith", r)
		assert.ErrorIs(t, err, roster.ErrInvalidInput)
	}
}

func TestStatus_MissingDeputy(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)

	found, err := dir.SetLegacyStatus(ctx, "Nobody", "On Duty")
	require.NoError(t, err)
	assert.False(t, found)

	view, err := dir.EffectiveStatus(ctx, "Nobody", roster.Date{})
	require.NoError(t, err)
	assert.Nil(t, view)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory(t)
	_, err := dir.Upsert(ctx, "Jane Smith", directory.Attrs{}, "")
	require.NoError(t, err)

	found, err := dir.Delete(ctx, "Jane Smith")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = dir.Delete(ctx, "Jane Smith")
	require.NoError(t, err)
	assert.False(t, found)
}
