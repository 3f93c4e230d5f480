package blob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxKeyRoundTrip(t *testing.T) {
	t.Parallel()

	submitted := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	key := InboxKey(submitted, "owner1")
	assert.Equal(t, "queue/1782907200_owner1.gzip", key)

	owner, ts, err := ParseInboxKey(key)
	require.NoError(t, err)
	assert.Equal(t, "owner1", owner)
	assert.Equal(t, submitted, ts)
}

func TestParseInboxKey_OwnerWithUnderscore(t *testing.T) {
	t.Parallel()

	owner, _, err := ParseInboxKey("queue/1700000000_github_alice.gzip")
	require.NoError(t, err)
	assert.Equal(t, "github_alice", owner, "only the first underscore separates")
}

func TestParseInboxKey_Invalid(t *testing.T) {
	t.Parallel()

	invalid := []string{
		"reports/o/p/report.gzip",
		"queue/1700000000_owner1.json",
		"queue/notanumber_owner1.gzip",
		"queue/1700000000.gzip",
		"queue/1700000000_.gzip",
		"queue/1700000000_own/er.gzip",
	}
	for _, key := range invalid {
		_, _, err := ParseInboxKey(key)
		assert.Error(t, err, "expected %q to be rejected", key)
	}
}

func TestReportKeys(t *testing.T) {
	t.Parallel()

	sha := "0123456789abcdef0123456789abcdef01234567"
	assert.Equal(t,
		"reports/owner1/proj-1/1700000000_"+sha+".gzip",
		ReportKey("owner1", "proj-1", 1700000000, sha))
	assert.Equal(t, "reports/owner1/proj-1/report.gzip", LatestReportKey("owner1", "proj-1"))
	assert.Equal(t, "profiles/owner1.json", ProfileKey("owner1"))

	assert.True(t, IsLatestReportKey(LatestReportKey("owner1", "proj-1")))
	assert.False(t, IsLatestReportKey(ReportKey("owner1", "proj-1", 1700000000, sha)))
}

func TestParseLatestReportKey(t *testing.T) {
	t.Parallel()

	owner, project, err := ParseLatestReportKey("reports/owner1/proj-1/report.gzip")
	require.NoError(t, err)
	assert.Equal(t, "owner1", owner)
	assert.Equal(t, "proj-1", project)

	invalid := []string{
		"queue/1700000000_owner1.gzip",
		"reports/owner1/report.gzip",
		"reports/owner1/proj-1/1700000000_abc.gzip",
		"reports//proj-1/report.gzip",
	}
	for _, key := range invalid {
		_, _, err := ParseLatestReportKey(key)
		assert.Error(t, err, "expected %q to be rejected", key)
	}
}
