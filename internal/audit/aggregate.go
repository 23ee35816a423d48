package audit

// Severity ranks a status. SKIP and unknown statuses report ok=false and
// never influence the verdict.
func Severity(s Status) (rank int, ok bool) {
	switch s {
	case StatusPass:
		return 0, true
	case StatusWarn:
		return 1, true
	case StatusFail:
		return 2, true
	case StatusError:
		return 3, true
	default:
		return 0, false
	}
}

var byRank = [...]Status{StatusPass, StatusWarn, StatusFail, StatusError}

// Overall returns the most severe status in results, PASS when none rank.
func Overall(results []Result) Status {
	return byRank[ExitCode(results)]
}

// ExitCode maps the most severe status to 0 (PASS), 1 (WARN), 2 (FAIL) or
// 3 (ERROR).
func ExitCode(results []Result) int {
	highest := 0
	for _, r := range results {
		if rank, ok := Severity(r.Status); ok && rank > highest {
			highest = rank
		}
	}
	return highest
}

// Counts tallies results per status.
func Counts(results []Result) map[Status]int {
	out := make(map[Status]int, len(byRank)+1)
	for _, r := range results {
		out[r.Status]++
	}
	return out
}

// Worst returns the most severe of the given statuses, ignoring SKIP.
// It returns StatusSkip when nothing ranks.
func Worst(statuses ...Status) Status {
	worst, found := 0, false
	for _, s := range statuses {
		if rank, ok := Severity(s); ok {
			found = true
			if rank > worst {
				worst = rank
			}
		}
	}
	if !found {
		return StatusSkip
	}
	return byRank[worst]
}
