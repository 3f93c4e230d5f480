package profile

import (
	"sort"
)

// Merge folds a set of project reports into a single profile for ownerID.
// The merge is deterministic: reports are processed in ascending timestamp
// order with the project ID as a tie-breaker, so the same set of inputs
// always produces the same profile regardless of arrival order.
//
// Identity fields (display name, public contact) are taken whole from the
// chronologically last report that carries them. Per-technology data merges
// by technology key: counters sum, keyword and package sets union, and the
// observed usage range widens to cover both sides.
func Merge(ownerID string, reports []*Report) (*Profile, error) {
	if len(reports) == 0 {
		return nil, ErrNoReports
	}

	ordered := make([]*Report, len(reports))
	copy(ordered, reports)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].ProjectID < ordered[j].ProjectID
	})

	p := &Profile{
		OwnerID:     ownerID,
		ReportCount: len(ordered),
		Tech:        make(map[string]*TechStat),
	}

	projects := make(map[string]ProjectSummary)

	for _, r := range ordered {
		if r.Timestamp.After(p.UpdatedAt) {
			p.UpdatedAt = r.Timestamp
		}

		// Later reports overwrite identity fields outright; an empty value
		// never clobbers an earlier non-empty one.
		if r.DisplayName != "" {
			p.DisplayName = r.DisplayName
		}
		if r.PublicContact != nil {
			c := *r.PublicContact
			p.PublicContact = &c
		}

		for name, stat := range r.Tech {
			if stat == nil {
				continue
			}
			mergeTech(p.Tech, name, stat)
		}

		summarizeProject(projects, r)
	}

	p.Projects = make([]ProjectSummary, 0, len(projects))
	for _, ps := range projects {
		p.Projects = append(p.Projects, ps)
	}
	sort.Slice(p.Projects, func(i, j int) bool {
		return p.Projects[i].ProjectID < p.Projects[j].ProjectID
	})

	if len(p.Tech) == 0 {
		p.Tech = nil
	}

	return p, nil
}

func mergeTech(into map[string]*TechStat, name string, stat *TechStat) {
	acc, ok := into[name]
	if !ok {
		acc = &TechStat{}
		into[name] = acc
	}

	acc.Files += stat.Files
	acc.CodeLines += stat.CodeLines

	if len(stat.Keywords) > 0 {
		if acc.Keywords == nil {
			acc.Keywords = make(map[string]int, len(stat.Keywords))
		}
		for kw, n := range stat.Keywords {
			acc.Keywords[kw] += n
		}
	}

	if len(stat.History) > 0 {
		if acc.History == nil {
			acc.History = make(map[string]int, len(stat.History))
		}
		for month, n := range stat.History {
			acc.History[month] += n
		}
	}

	if len(stat.Packages) > 0 {
		acc.Packages = unionSorted(acc.Packages, stat.Packages)
	}

	if stat.FirstUsedEpoch > 0 && (acc.FirstUsedEpoch == 0 || stat.FirstUsedEpoch < acc.FirstUsedEpoch) {
		acc.FirstUsedEpoch = stat.FirstUsedEpoch
	}
	if stat.LastUsedEpoch > acc.LastUsedEpoch {
		acc.LastUsedEpoch = stat.LastUsedEpoch
	}
}

func summarizeProject(into map[string]ProjectSummary, r *Report) {
	id := r.ProjectID
	overview := ProjectOverview{}
	if len(r.ProjectsIncluded) > 0 {
		overview = r.ProjectsIncluded[0]
		if id == "" {
			id = overview.ProjectID
		}
	}
	if id == "" {
		return
	}

	// Reports arrive in ascending timestamp order, so the last write for a
	// project ID reflects its newest report.
	into[id] = ProjectSummary{
		ProjectID:        id,
		ContributorLines: overview.ContributorLines,
		LastCommitEpoch:  overview.LastCommitEpoch,
	}
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
