package store

import (
	"fmt"
	"sort"
	"strings"

	"hireline/internal/domain"
)

type SortKey string

const (
	SortByScore SortKey = "score"
	SortByName  SortKey = "nome"
)

func ParseSortKey(s string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "score":
		return SortByScore, nil
	case "nome", "name":
		return SortByName, nil
	}
	return "", fmt.Errorf("unknown sort key %q (score, nome)", s)
}

// CandidatesForJob returns the candidates linked to jobID, ordered by key.
// The result is a fresh slice owned by the caller.
func (s *Store) CandidatesForJob(jobID int64, key SortKey, descending bool) []domain.Candidate {
	all := s.Candidates()
	out := make([]domain.Candidate, 0, len(all))
	for _, c := range all {
		if c.AppliedTo(jobID) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if descending {
			a, b = b, a
		}
		if key == SortByName {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		return a.Score < b.Score
	})
	return out
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
