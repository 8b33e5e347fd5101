package srcset

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformedCandidate is matched by every *MalformedCandidateError.
var ErrMalformedCandidate = errors.New("malformed candidate")

// Candidate is one image option of a background-image declaration.
type Candidate struct {
	Source string
	Width  int
	// Forced candidates are applied verbatim, never substituted by an
	// already loaded image.
	Forced bool
}

func (c Candidate) String() string {
	s := c.Source + " " + strconv.Itoa(c.Width) + "w"
	if c.Forced {
		s += " force"
	}
	return s
}

// CandidateSet is ordered ascending by width.
type CandidateSet []Candidate

// String formats the set back into declaration syntax.
func (cs CandidateSet) String() string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// Largest returns the widest candidate.
func (cs CandidateSet) Largest() (Candidate, bool) {
	if len(cs) == 0 {
		return Candidate{}, false
	}
	return cs[len(cs)-1], true
}

// MalformedCandidateError reports a declaration entry that does not follow
// `<source> <width>w[ force]`.
type MalformedCandidateError struct {
	Entry  string
	Index  int
	Reason string
}

func (e *MalformedCandidateError) Error() string {
	return fmt.Sprintf("srcset entry %d %q: %s", e.Index, strings.TrimSpace(e.Entry), e.Reason)
}

func (e *MalformedCandidateError) Is(target error) bool {
	return target == ErrMalformedCandidate
}

var candidateRe = regexp.MustCompile(`(\S+)\s+(\d+)w(\s+force)?`)

// Parse turns a raw declaration into a CandidateSet sorted by width. An empty
// declaration yields an empty set.
func Parse(raw string) (CandidateSet, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	entries := strings.Split(raw, ",")
	set := make(CandidateSet, 0, len(entries))
	for i, entry := range entries {
		m := candidateRe.FindStringSubmatch(entry)
		if m == nil {
			return nil, &MalformedCandidateError{Entry: entry, Index: i, Reason: "expected `<source> <width>w[ force]`"}
		}
		w, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, &MalformedCandidateError{Entry: entry, Index: i, Reason: "width out of range"}
		}
		if w <= 0 {
			return nil, &MalformedCandidateError{Entry: entry, Index: i, Reason: "width must be positive"}
		}
		set = append(set, Candidate{Source: m[1], Width: w, Forced: m[3] != ""})
	}
	sort.SliceStable(set, func(i, j int) bool { return set[i].Width < set[j].Width })
	return set, nil
}
