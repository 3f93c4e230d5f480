package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_NoReports(t *testing.T) {
	t.Parallel()

	p, err := Merge("owner1", nil)
	require.ErrorIs(t, err, ErrNoReports)
	assert.Nil(t, p)
}

func TestMerge_IdentityLatestWins(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	r1 := &Report{
		ProjectID:   "proj-a",
		Timestamp:   t1,
		DisplayName: "Alice",
		Tech:        map[string]*TechStat{"X": {CodeLines: 100}},
	}
	r2 := &Report{
		ProjectID:   "proj-b",
		Timestamp:   t2,
		DisplayName: "Alice W.",
		Tech: map[string]*TechStat{
			"X": {CodeLines: 50},
			"Y": {CodeLines: 20},
		},
	}

	p, err := Merge("owner1", []*Report{r1, r2})
	require.NoError(t, err)

	assert.Equal(t, "Alice W.", p.DisplayName)
	assert.Equal(t, 150, p.Tech["X"].CodeLines)
	assert.Equal(t, 20, p.Tech["Y"].CodeLines)
	assert.Equal(t, 2, p.ReportCount)
	assert.Equal(t, t2, p.UpdatedAt)
}

func TestMerge_EmptyIdentityDoesNotClobber(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	reports := []*Report{
		{
			ProjectID:     "proj-a",
			Timestamp:     t1,
			DisplayName:   "Alice",
			PublicContact: &Contact{Email: "alice@example.com"},
		},
		{
			ProjectID: "proj-b",
			Timestamp: t1.Add(time.Hour),
		},
	}

	p, err := Merge("owner1", reports)
	require.NoError(t, err)

	assert.Equal(t, "Alice", p.DisplayName)
	require.NotNil(t, p.PublicContact)
	assert.Equal(t, "alice@example.com", p.PublicContact.Email)
}

func TestMerge_TechAccumulation(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	r1 := &Report{
		ProjectID: "proj-a",
		Timestamp: t1,
		Tech: map[string]*TechStat{
			"Go": {
				Files:          10,
				CodeLines:      1200,
				Keywords:       map[string]int{"func": 40, "chan": 3},
				Packages:       []string{"net/http", "encoding/json"},
				History:        map[string]int{"2025-11": 4},
				FirstUsedEpoch: 1700000000,
				LastUsedEpoch:  1730000000,
			},
		},
	}
	r2 := &Report{
		ProjectID: "proj-b",
		Timestamp: t1.Add(time.Hour),
		Tech: map[string]*TechStat{
			"Go": {
				Files:          5,
				CodeLines:      300,
				Keywords:       map[string]int{"func": 12, "defer": 7},
				Packages:       []string{"net/http", "io"},
				History:        map[string]int{"2025-11": 2, "2025-12": 6},
				FirstUsedEpoch: 1690000000,
				LastUsedEpoch:  1740000000,
			},
		},
	}

	p, err := Merge("owner1", []*Report{r1, r2})
	require.NoError(t, err)

	goStat := p.Tech["Go"]
	require.NotNil(t, goStat)
	assert.Equal(t, 15, goStat.Files)
	assert.Equal(t, 1500, goStat.CodeLines)
	assert.Equal(t, 52, goStat.Keywords["func"])
	assert.Equal(t, 3, goStat.Keywords["chan"])
	assert.Equal(t, 7, goStat.Keywords["defer"])
	assert.Equal(t, []string{"encoding/json", "io", "net/http"}, goStat.Packages)
	assert.Equal(t, 6, goStat.History["2025-11"])
	assert.Equal(t, 6, goStat.History["2025-12"])
	assert.Equal(t, int64(1690000000), goStat.FirstUsedEpoch)
	assert.Equal(t, int64(1740000000), goStat.LastUsedEpoch)
}

func TestMerge_ProjectsSortedAndLatestSummaryWins(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	reports := []*Report{
		{
			ProjectID: "proj-b",
			Timestamp: t1,
			ProjectsIncluded: []ProjectOverview{
				{ProjectID: "proj-b", ContributorLines: 100, LastCommitEpoch: 1000},
			},
		},
		{
			ProjectID: "proj-a",
			Timestamp: t1.Add(time.Hour),
			ProjectsIncluded: []ProjectOverview{
				{ProjectID: "proj-a", ContributorLines: 50, LastCommitEpoch: 2000},
			},
		},
		{
			ProjectID: "proj-b",
			Timestamp: t1.Add(2 * time.Hour),
			ProjectsIncluded: []ProjectOverview{
				{ProjectID: "proj-b", ContributorLines: 140, LastCommitEpoch: 3000},
			},
		},
	}

	p, err := Merge("owner1", reports)
	require.NoError(t, err)

	require.Len(t, p.Projects, 2)
	assert.Equal(t, "proj-a", p.Projects[0].ProjectID)
	assert.Equal(t, "proj-b", p.Projects[1].ProjectID)
	assert.Equal(t, 140, p.Projects[1].ContributorLines)
	assert.Equal(t, int64(3000), p.Projects[1].LastCommitEpoch)
}

func TestMerge_DeterministicAcrossInputOrder(t *testing.T) {
	t.Parallel()

	t1 := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mkReports := func() []*Report {
		return []*Report{
			{
				ProjectID:   "proj-a",
				Timestamp:   t1,
				DisplayName: "Alice",
				Tech: map[string]*TechStat{
					"Go":   {CodeLines: 100, Packages: []string{"fmt", "os"}},
					"Rust": {CodeLines: 40},
				},
			},
			{
				ProjectID:   "proj-b",
				Timestamp:   t1.Add(time.Hour),
				DisplayName: "Alice W.",
				Tech: map[string]*TechStat{
					"Go": {CodeLines: 30, Packages: []string{"io", "fmt"}},
				},
			},
			{
				ProjectID: "proj-c",
				Timestamp: t1.Add(2 * time.Hour),
				Tech: map[string]*TechStat{
					"SQL": {CodeLines: 5},
				},
			},
		}
	}

	forward := mkReports()
	reversed := mkReports()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}

	p1, err := Merge("owner1", forward)
	require.NoError(t, err)
	p2, err := Merge("owner1", reversed)
	require.NoError(t, err)

	b1, err := p1.Canonical()
	require.NoError(t, err)
	b2, err := p2.Canonical()
	require.NoError(t, err)

	assert.Equal(t, b1, b2, "same report set must serialize identically regardless of input order")
}

func TestMerge_TimestampTieBreaksOnProjectID(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	reports := []*Report{
		{ProjectID: "proj-b", Timestamp: ts, DisplayName: "From B"},
		{ProjectID: "proj-a", Timestamp: ts, DisplayName: "From A"},
	}

	p, err := Merge("owner1", reports)
	require.NoError(t, err)

	// Equal timestamps order by project ID, so proj-b is processed last.
	assert.Equal(t, "From B", p.DisplayName)
}

func TestParseReport_Malformed(t *testing.T) {
	t.Parallel()

	_, err := ParseReport([]byte("{not json"))
	require.ErrorIs(t, err, ErrMalformedReport)
}

func TestParseReport_RoundTrip(t *testing.T) {
	t.Parallel()

	raw := `{
		"timestamp": "2026-01-15T10:00:00Z",
		"display_name": "Alice",
		"tech": {"Go": {"files": 3, "code_lines": 200}},
		"projects_included": [{"project_id": "p1", "commits": ["a1b2c3d4_1700000000"]}]
	}`

	r, err := ParseReport([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Alice", r.DisplayName)
	assert.Equal(t, 200, r.Tech["Go"].CodeLines)
	require.Len(t, r.ProjectsIncluded, 1)
	assert.Equal(t, []string{"a1b2c3d4_1700000000"}, r.ProjectsIncluded[0].Commits)
}
