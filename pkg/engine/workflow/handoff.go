package workflow

import (
	"encoding/json"
	"time"

	"Bindr/pkg/engine/api"
)

// MaxHandoffBytes bounds the serialized handoff. A handoff is a summary;
// anything that needs more room belongs in the session transcript.
const MaxHandoffBytes = 2048

const (
	maxListItems  = 10
	maxItemBytes  = 200
	maxFieldBytes = 400
)

// BuildHandoff assembles the bounded summary carried from one mode to
// the next. It is a pure function of its inputs: the same activity log
// always yields byte-identical output (modulo the timestamp). It cannot
// fail: if shrinking exhausts the summary while the record is still
// over budget, the handoff degrades to the bare envelope rather than
// blocking the transition.
func BuildHandoff(from, to api.Mode, project string, meta map[string]string, activity []api.ActivityRecord, now time.Time) *api.ContextHandoff {
	summary := summarize(from, project, meta, activity)
	truncate(&summary)

	h := &api.ContextHandoff{
		Version:   api.HandoffVersion,
		From:      from,
		To:        to,
		Summary:   summary,
		CreatedAt: now.UTC(),
	}

	for encodedSize(h) > MaxHandoffBytes {
		if !shrink(&h.Summary) {
			h.Summary = api.HandoffSummary{}
			break
		}
	}
	return h
}

// summarize extracts the outgoing mode's fields from the activity log.
// Only records attributed to the outgoing mode contribute.
func summarize(from api.Mode, project string, meta map[string]string, activity []api.ActivityRecord) api.HandoffSummary {
	var s api.HandoffSummary

	var features, constraints, files, commands, decisions, notes, docs []string
	testStatus := ""
	for _, rec := range activity {
		if rec.Mode != from || rec.Text == "" {
			continue
		}
		switch rec.Kind {
		case api.ActivityFeature:
			features = append(features, rec.Text)
		case api.ActivityConstraint:
			constraints = append(constraints, rec.Text)
		case api.ActivityFile:
			files = append(files, rec.Text)
		case api.ActivityCommand:
			commands = append(commands, rec.Text)
		case api.ActivityDecision:
			decisions = append(decisions, rec.Text)
		case api.ActivityDocument:
			docs = append(docs, rec.Text)
		case api.ActivityTest:
			testStatus = rec.Text // most recent wins
		case api.ActivityNote:
			notes = append(notes, rec.Text)
		}
	}

	s.Decisions = decisions
	s.OpenItems = notes

	switch from {
	case api.ModeBrainstorm:
		s.ProjectName = project
		if meta != nil {
			if name := meta["project_name"]; name != "" {
				s.ProjectName = name
			}
			s.Description = meta["description"]
		}
		s.KeyFeatures = features
		s.Constraints = constraints
	case api.ModePlan:
		s.FileInventory = files
		s.Milestones = features
		s.TechStack = constraints
	case api.ModeExecute:
		s.Implemented = files
		s.CommandsRun = commands
		s.TestStatus = testStatus
	case api.ModeDocument:
		s.Documents = docs
	}
	return s
}

// truncate applies the first deterministic reduction pass: caps list
// lengths and clips long strings.
func truncate(s *api.HandoffSummary) {
	s.ProjectName = clip(s.ProjectName, maxFieldBytes)
	s.Description = clip(s.Description, maxFieldBytes)
	s.TestStatus = clip(s.TestStatus, maxFieldBytes)

	for _, list := range summaryLists(s) {
		// The activity log is append-only, so the front of each list is
		// the oldest detail. Recency wins when the budget forces a cut.
		if len(*list) > maxListItems {
			*list = (*list)[len(*list)-maxListItems:]
		}
		for i, item := range *list {
			(*list)[i] = clip(item, maxItemBytes)
		}
	}
}

// shrink drops the oldest item from the longest list, or failing that
// clips the longest scalar field. Ties are broken by fixed field order
// so the result is stable. Returns false when nothing is left to remove.
func shrink(s *api.HandoffSummary) bool {
	lists := summaryLists(s)
	longest := -1
	for i, list := range lists {
		if len(*list) == 0 {
			continue
		}
		if longest == -1 || len(*list) > len(*lists[longest]) {
			longest = i
		}
	}
	if longest >= 0 {
		l := lists[longest]
		*l = (*l)[1:]
		return true
	}

	for _, field := range []*string{&s.Description, &s.TestStatus, &s.ProjectName} {
		if len(*field) > 32 {
			*field = clip(*field, len(*field)/2)
			return true
		}
	}
	return false
}

// summaryLists returns the list fields in a fixed order. OpenItems comes
// first so it is shrunk before the mode-specific payload on ties.
func summaryLists(s *api.HandoffSummary) []*[]string {
	return []*[]string{
		&s.OpenItems,
		&s.Decisions,
		&s.KeyFeatures,
		&s.Constraints,
		&s.FileInventory,
		&s.TechStack,
		&s.Milestones,
		&s.Implemented,
		&s.CommandsRun,
		&s.Documents,
	}
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func encodedSize(h *api.ContextHandoff) int {
	data, err := json.Marshal(h)
	if err != nil {
		return MaxHandoffBytes + 1
	}
	return len(data)
}
