package srcset

// RequiredWidth converts a measured CSS width into device pixels. A missing
// or non-positive ratio counts as 1 and the result is never below 1.
func RequiredWidth(measured, ratio float64) float64 {
	if ratio <= 0 {
		ratio = 1
	}
	return max(1, measured*ratio)
}

// SelectCandidate returns the narrowest candidate at least required pixels
// wide, or the widest one when none is.
func SelectCandidate(cs CandidateSet, required float64) (Candidate, bool) {
	for i, c := range cs {
		if float64(c.Width) >= required || i == len(cs)-1 {
			return c, true
		}
	}
	return Candidate{}, false
}

// Choice is the outcome of a selection for one element.
type Choice struct {
	Candidate Candidate
	Source    string
	// Reused is set when Source is an already loaded image that replaced
	// the naive pick.
	Reused bool
}

// Choose selects a candidate and, unless it is forced, swaps it for an
// already loaded image that is wide enough.
func Choose(cs CandidateSet, required float64, loaded *LoadedRegistry) (Choice, bool) {
	c, ok := SelectCandidate(cs, required)
	if !ok {
		return Choice{}, false
	}
	ch := Choice{Candidate: c, Source: c.Source}
	if c.Forced || loaded == nil {
		return ch, true
	}
	if src, found := loaded.FindAlreadyLoadedBiggerImage(cs, required); found {
		ch.Reused = src != c.Source
		ch.Source = src
	}
	return ch, true
}
