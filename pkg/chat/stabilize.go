package chat

import "orcabridge/pkg/markdown"

// Sample is one observation of the newest assistant message.
type Sample struct {
	Count  int              `json:"count"`
	Text   string           `json:"text"`
	Images []markdown.Image `json:"images"`
}

// Stabilizer decides when a streamed reply is done. Streaming pages have
// no "done" signal visible from outside, so the reply is considered
// finished once the message count has grown past the count recorded at
// send time and the observed body has been identical for threshold
// consecutive polls.
type Stabilizer struct {
	baseline  int
	threshold int
	streak    int
	last      Sample
	recorded  bool
}

// NewStabilizer creates a policy with the assistant message count seen
// before the send. A threshold below 1 falls back to 3.
func NewStabilizer(baseline, threshold int) *Stabilizer {
	if threshold < 1 {
		threshold = 3
	}
	return &Stabilizer{baseline: baseline, threshold: threshold}
}

// Observe feeds one sample and reports whether the reply is stable.
//
// Samples are compared by value. A sample whose count has not grown past
// the baseline means no new reply yet and does not advance the streak.
// Any change in text or images resets the streak and re-records the
// sample as the comparison baseline; only a non-empty body can complete
// the streak, so a reply that is still blank never stabilizes.
func (s *Stabilizer) Observe(sample Sample) bool {
	if sample.Count <= s.baseline {
		return false
	}
	if s.recorded && sample.Text == s.last.Text && imagesEqual(sample.Images, s.last.Images) {
		if sample.Text == "" {
			return false
		}
		s.streak++
		return s.streak >= s.threshold
	}
	s.streak = 0
	s.last = sample
	s.recorded = true
	return false
}

// Last returns the most recently recorded sample: the stable reply after
// Observe returned true, or the best-known partial output on timeout.
func (s *Stabilizer) Last() Sample {
	return s.last
}

func imagesEqual(a, b []markdown.Image) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
