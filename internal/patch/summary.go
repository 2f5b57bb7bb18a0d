package patch

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/agentgate/agentgate/pkg/types"
)

// ParseUnifiedDiff aggregates a terminal turn-diff payload (unified diff
// text) into per-file added/deleted line counts.
func ParseUnifiedDiff(text string) types.DiffSummary {
	summary := types.DiffSummary{PerFile: make(map[string]int)}

	var current string
	for _, line := range strings.Split(text, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			current = strings.TrimPrefix(line, "+++ ")
			current = strings.TrimPrefix(current, "b/")
			if current != "/dev/null" {
				if _, seen := summary.PerFile[current]; !seen {
					summary.PerFile[current] = 0
					summary.Files++
				}
			}
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "diff "),
			strings.HasPrefix(line, "index "), strings.HasPrefix(line, "@@"):
			// header lines carry no content
		case strings.HasPrefix(line, "+"):
			summary.Additions++
			if current != "" && current != "/dev/null" {
				summary.PerFile[current]++
			}
		case strings.HasPrefix(line, "-"):
			summary.Deletions++
			if current != "" && current != "/dev/null" {
				summary.PerFile[current]++
			}
		}
	}

	return summary
}

// Stats computes added and deleted line counts between two file states.
func Stats(before, after string) (additions, deletions int) {
	if before == after {
		return 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}

	return additions, deletions
}

// Summarize computes the diff summary of a pending change set against the
// files currently on disk.
func Summarize(changes Set, readFile func(path string) (string, bool)) types.DiffSummary {
	summary := types.DiffSummary{PerFile: make(map[string]int)}

	for _, path := range changes.Paths() {
		change := changes[path]

		var before string
		if readFile != nil {
			before, _ = readFile(path)
		}

		after := change.Content
		if change.Delete {
			after = ""
		}

		add, del := Stats(before, after)
		summary.Files++
		summary.Additions += add
		summary.Deletions += del
		summary.PerFile[path] = add + del
	}

	return summary
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
