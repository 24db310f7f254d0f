package stream

import (
	"errors"
	"strings"
)

// ErrNoCandidates is wrapped by the failure returned when nothing can be selected.
var ErrNoCandidates = errors.New("no playable stream variants")

var (
	// AmazonQualityRanks is the label order used by the Amazon Music API.
	AmazonQualityRanks = []string{"High", "Normal", "Medium", "Low"}
	// MirrorQualityRanks is the label order used by REST mirror APIs.
	MirrorQualityRanks = []string{"ULTRA_HD", "HD", "HIGH", "STANDARD", "LOW"}
	// NetEaseQualityRanks is the NetEase level vocabulary, best first.
	NetEaseQualityRanks = []string{"jymaster", "hires", "lossless", "exhigh", "higher", "standard"}
)

// Selector picks the best variant out of one provider response.
// Ranks lists the provider's quality labels, best first; labels are not
// comparable across providers.
type Selector struct {
	Ranks []string
}

// NewSelector creates a selector with the given label ranking.
func NewSelector(ranks ...string) Selector {
	return Selector{Ranks: ranks}
}

// Select returns the candidate with the highest bitrate. When no candidate
// reports a bitrate it falls back to the label ranking. Ties keep the
// first-seen candidate.
func (s Selector) Select(candidates []StreamCandidate) (StreamCandidate, error) {
	best := -1
	bestBitrate := 0
	for i, c := range candidates {
		if c.URL == "" || c.Bitrate <= 0 {
			continue
		}
		if c.Bitrate > bestBitrate {
			best, bestBitrate = i, c.Bitrate
		}
	}
	if best >= 0 {
		return candidates[best], nil
	}

	bestRank := len(s.Ranks) + 1
	for i, c := range candidates {
		if c.URL == "" {
			continue
		}
		if rank := s.rank(c.Quality); rank < bestRank {
			best, bestRank = i, rank
		}
	}
	if best < 0 {
		return StreamCandidate{}, NewFailure("", ReasonNoPlayableVariant, ErrNoCandidates)
	}
	return candidates[best], nil
}

// rank returns the position of label in the table; unknown labels rank last.
func (s Selector) rank(label string) int {
	for i, r := range s.Ranks {
		if strings.EqualFold(r, strings.TrimSpace(label)) {
			return i
		}
	}
	return len(s.Ranks)
}
