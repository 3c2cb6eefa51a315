package admission

import "time"

// =============================================================================
// OVERLAP DETECTOR
// =============================================================================

// Spans are compared on whole days: a request occupies [start 00:00, end+1 00:00).
// Half-day periods only affect cost, never collisions, so a MORNING request and
// an AFTERNOON request on the same day still conflict.

func spanStart(d Date) time.Time { return ToInstant(d, FullDay, EdgeStart) }
func spanEnd(d Date) time.Time { return ToInstant(d, FullDay, EdgeEnd) }

// Overlaps is the half-open interval test existing.start < candidate.end && existing.end > candidate.start.
func Overlaps(existingStart, existingEnd, candidateStart, candidateEnd Date) bool {
	return spanStart(existingStart).Before(spanEnd(candidateEnd)) &&
		spanEnd(existingEnd).After(spanStart(candidateStart))
}

// HasConflict reports whether any active request in existing overlaps the candidate span.
// The slice must hold the requester's own requests; REJECTED ones are ignored.
func HasConflict(existing []Request, candidateStart, candidateEnd Date) bool {
	return FindConflict(existing, "", candidateStart, candidateEnd) != nil
}

// FindConflict returns the first active request that overlaps the candidate span.
// When requesterID is set, requests of other users are skipped.
func FindConflict(existing []Request, requesterID UserID, candidateStart, candidateEnd Date) *Request {
	for i := range existing {
		r := &existing[i]
		if !r.Status.Active() {
			continue
		}
		if requesterID != "" && r.RequesterID != requesterID {
			continue
		}
		if Overlaps(r.StartDate, r.EndDate, candidateStart, candidateEnd) {
			return r
		}
	}
	return nil
}
