package agentsession

import "regexp"

// Signal is a lifecycle tag an agent embeds in its textual output.
type Signal string

const (
	SignalComplete Signal = "COMPLETE"
	SignalContinue Signal = "CONTINUE"
	SignalBlocked  Signal = "BLOCKED"
)

var (
	completePattern = regexp.MustCompile(`<complete\s*/?>`)
	blockedPattern  = regexp.MustCompile(`<blocked\s+reason="([^"]+)"\s*/?>`)
	continuePattern = regexp.MustCompile(`<continue\s*/?>`)
)

// ParseSignal scans text for the three lifecycle tags and returns the one
// whose match ends latest in the string — the testable contract is
// explicit ("the latest tag wins"), so every pattern is matched against
// the full text and the match with the greatest end offset is taken,
// rather than checking patterns in a fixed priority order. Absent any
// tag, the signal defaults to CONTINUE with an empty reason.
type signalCandidate struct {
	signal Signal
	end    int
	reason string
}

func ParseSignal(text string) (signal Signal, reason string) {
	var best *signalCandidate

	consider := func(c signalCandidate) {
		if best == nil || c.end > best.end {
			best = &c
		}
	}

	if all := completePattern.FindAllStringIndex(text, -1); all != nil {
		loc := all[len(all)-1]
		consider(signalCandidate{signal: SignalComplete, end: loc[1]})
	}
	if all := blockedPattern.FindAllStringSubmatchIndex(text, -1); all != nil {
		loc := all[len(all)-1]
		reason := ""
		if loc[2] >= 0 && loc[3] >= 0 {
			reason = text[loc[2]:loc[3]]
		}
		consider(signalCandidate{signal: SignalBlocked, end: loc[1], reason: reason})
	}
	if all := continuePattern.FindAllStringIndex(text, -1); all != nil {
		loc := all[len(all)-1]
		consider(signalCandidate{signal: SignalContinue, end: loc[1]})
	}

	if best == nil {
		return SignalContinue, ""
	}
	return best.signal, best.reason
}

// ReviewDecision is the outcome of review-mode signal parsing.
type ReviewDecision string

const (
	ReviewApproved ReviewDecision = "approved"
	ReviewRejected ReviewDecision = "rejected"
)

var (
	decisionApprovePattern = regexp.MustCompile(`(?i)Decision:\s*Approve`)
	decisionRejectPattern  = regexp.MustCompile(`(?i)Decision:\s*Reject`)
	tagApprovePattern      = regexp.MustCompile(`<approve\s*/?>`)
	tagRejectPattern       = regexp.MustCompile(`<reject\s*/?>`)
)

// ParseReviewDecision scans review-agent output for "Decision: Approve",
// "Decision: Reject", "<approve/>", and "<reject/>", returning the
// decision whose match ends latest in the text (source-location is the
// tiebreaker, per the testable-properties contract). ok is false when no
// recognized decision is present.
func ParseReviewDecision(text string) (decision ReviewDecision, ok bool) {
	bestEnd := -1
	var bestDecision ReviewDecision

	check := func(pattern *regexp.Regexp, d ReviewDecision) {
		all := pattern.FindAllStringIndex(text, -1)
		if all == nil {
			return
		}
		if loc := all[len(all)-1]; loc[1] > bestEnd {
			bestEnd = loc[1]
			bestDecision = d
		}
	}

	check(decisionApprovePattern, ReviewApproved)
	check(decisionRejectPattern, ReviewRejected)
	check(tagApprovePattern, ReviewApproved)
	check(tagRejectPattern, ReviewRejected)

	if bestEnd < 0 {
		return "", false
	}
	return bestDecision, true
}
