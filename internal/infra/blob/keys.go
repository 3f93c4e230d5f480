// Package blob provides object storage for raw report submissions, filed
// per-project reports, and aggregated profile documents. The MinIO-backed
// store is the production implementation; the memory store mirrors it for
// tests.
//
// Key layout:
//
//	queue/<epoch>_<owner>.gzip                  inbox, one object per submission
//	reports/<owner>/<project>/<epoch>_<sha1>.gzip  immutable filed report
//	reports/<owner>/<project>/report.gzip       latest report for the project
//	profiles/<owner>.json                       aggregated profile document
package blob

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	inboxPrefix    = "queue/"
	reportsPrefix  = "reports/"
	profilesPrefix = "profiles/"

	gzipSuffix       = ".gzip"
	latestReportName = "report.gzip"
)

// InboxPrefix is the listing prefix for unrouted submissions.
func InboxPrefix() string { return inboxPrefix }

// InboxKey names a submission object in the inbox.
func InboxKey(submittedAt time.Time, ownerID string) string {
	return fmt.Sprintf("%s%d_%s%s", inboxPrefix, submittedAt.Unix(), ownerID, gzipSuffix)
}

// ParseInboxKey extracts the submission time and owner from an inbox key.
func ParseInboxKey(key string) (ownerID string, submittedAt time.Time, err error) {
	name, ok := strings.CutPrefix(key, inboxPrefix)
	if !ok {
		return "", time.Time{}, fmt.Errorf("not an inbox key: %q", key)
	}
	name, ok = strings.CutSuffix(name, gzipSuffix)
	if !ok {
		return "", time.Time{}, fmt.Errorf("inbox key missing %s suffix: %q", gzipSuffix, key)
	}
	epochStr, owner, ok := strings.Cut(name, "_")
	if !ok || owner == "" || strings.Contains(owner, "/") {
		return "", time.Time{}, fmt.Errorf("malformed inbox key: %q", key)
	}
	epoch, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil || epoch <= 0 {
		return "", time.Time{}, fmt.Errorf("malformed inbox key: %q", key)
	}
	return owner, time.Unix(epoch, 0).UTC(), nil
}

// ReportKey names an immutable filed report.
func ReportKey(ownerID, projectID string, commitEpoch int64, sha1 string) string {
	return fmt.Sprintf("%s%s/%s/%d_%s%s", reportsPrefix, ownerID, projectID, commitEpoch, sha1, gzipSuffix)
}

// LatestReportKey names the current report for a project.
func LatestReportKey(ownerID, projectID string) string {
	return fmt.Sprintf("%s%s/%s/%s", reportsPrefix, ownerID, projectID, latestReportName)
}

// OwnerReportsPrefix is the listing prefix for one owner's filed reports.
func OwnerReportsPrefix(ownerID string) string {
	return reportsPrefix + ownerID + "/"
}

// ProfileKey names the aggregated profile document for an owner.
func ProfileKey(ownerID string) string {
	return profilesPrefix + ownerID + ".json"
}

// IsLatestReportKey reports whether key points at a project's current
// report rather than an immutable filed copy.
func IsLatestReportKey(key string) bool {
	return strings.HasSuffix(key, "/"+latestReportName)
}

// ParseLatestReportKey extracts the owner and project from a current-report
// key as produced by LatestReportKey.
func ParseLatestReportKey(key string) (ownerID, projectID string, err error) {
	rest, ok := strings.CutPrefix(key, reportsPrefix)
	if !ok {
		return "", "", fmt.Errorf("not a report key: %q", key)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] != latestReportName {
		return "", "", fmt.Errorf("malformed report key: %q", key)
	}
	return parts[0], parts[1], nil
}

func isGzipKey(key string) bool {
	return strings.HasSuffix(key, gzipSuffix)
}
