package availability

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// Ranges maps a rendered range key to the number of units available for it.
type Ranges map[string]int

// Keys returns the range keys in chronological order.
func (r Ranges) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FacilityReport is one facility's windows bucketed by category.
type FacilityReport struct {
	Priority Ranges `json:"priority"`
	Regular  Ranges `json:"regular"`
	Ignored  Ranges `json:"ignored"`
}

// NewFacilityReport returns a report with all three buckets allocated.
func NewFacilityReport() FacilityReport {
	return FacilityReport{Priority: Ranges{}, Regular: Ranges{}, Ignored: Ranges{}}
}

// Empty reports whether no bucket holds a window.
func (r FacilityReport) Empty() bool {
	return len(r.Priority) == 0 && len(r.Regular) == 0 && len(r.Ignored) == 0
}

// Bucket returns the ranges for c, or nil for Excluded.
func (r FacilityReport) Bucket(c Category) Ranges {
	switch c {
	case Priority:
		return r.Priority
	case Regular:
		return r.Regular
	case Ignored:
		return r.Ignored
	}
	return nil
}

// MarshalJSON always emits all three keys, with {} for empty buckets.
func (r FacilityReport) MarshalJSON() ([]byte, error) {
	type wire struct {
		Priority Ranges `json:"priority"`
		Regular  Ranges `json:"regular"`
		Ignored  Ranges `json:"ignored"`
	}
	return json.Marshal(wire{
		Priority: orEmpty(r.Priority),
		Regular:  orEmpty(r.Regular),
		Ignored:  orEmpty(r.Ignored),
	})
}

func orEmpty(r Ranges) Ranges {
	if r == nil {
		return Ranges{}
	}
	return r
}

// Assemble buckets classified windows by category and rendered range.
// Windows that render to the same key in the same category are summed.
func Assemble(windows []ClassifiedWindow) FacilityReport {
	report := NewFacilityReport()
	for _, w := range windows {
		bucket := report.Bucket(w.Category)
		if bucket == nil {
			continue
		}
		bucket[w.Key()] += w.Available
	}
	return report
}

// BuildFacilityReport runs the whole pipeline for one facility's free counts.
func BuildFacilityReport(counts FreeCounts, minNights int) FacilityReport {
	windows := FindWindows(counts, minNights)
	return Assemble(ClassifyWindows(windows, minNights))
}

// Report is the merged result keyed by facility label, e.g.
// "Kirby Cove (232447)" or "Big Basin (rc:718)".
type Report map[string]FacilityReport

// Merge joins per-category results keyed by facility label. A label missing
// from a category gets an empty bucket; labels with nothing at all are dropped.
func Merge(priority, regular, ignored map[string]Ranges) Report {
	labels := make(map[string]bool)
	for _, m := range []map[string]Ranges{priority, regular, ignored} {
		for label := range m {
			labels[label] = true
		}
	}

	merged := make(Report, len(labels))
	for label := range labels {
		fr := FacilityReport{
			Priority: orEmpty(priority[label]),
			Regular:  orEmpty(regular[label]),
			Ignored:  orEmpty(ignored[label]),
		}
		if fr.Empty() {
			continue
		}
		merged[label] = fr
	}
	return merged
}

// Add stores fr under label unless it is empty. It reports whether fr was kept.
func (r Report) Add(label string, fr FacilityReport) bool {
	if fr.Empty() {
		return false
	}
	r[label] = fr
	return true
}

// Update folds a later batch into r. A label present in both is replaced
// by the later batch's entry.
func (r Report) Update(later Report) {
	for label, fr := range later {
		r.Add(label, fr)
	}
}

// Labels returns the facility labels in sorted order.
func (r Report) Labels() []string {
	labels := make([]string, 0, len(r))
	for label := range r {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// DecodeReport parses a report payload. A payload carrying an "error" key is
// returned as an error instead.
func DecodeReport(data []byte) (Report, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if msg, ok := raw["error"]; ok {
		var text string
		if err := json.Unmarshal(msg, &text); err != nil {
			return nil, fmt.Errorf("decode error payload: %w", err)
		}
		return nil, errors.New(text)
	}

	report := make(Report, len(raw))
	for label, body := range raw {
		var fr FacilityReport
		if err := json.Unmarshal(body, &fr); err != nil {
			return nil, fmt.Errorf("decode facility %q: %w", label, err)
		}
		report.Add(label, fr)
	}
	return report, nil
}

const (
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

// WriteText renders the human-readable display: all priority results first,
// then regular, then ignored, one block per facility.
func (r Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	labels := r.Labels()
	passes := []struct {
		cat    Category
		header string
	}{
		{Priority, "Priority Results"},
		{Regular, "Regular Results"},
		{Ignored, "Ignored Results"},
	}
	for _, pass := range passes {
		for _, label := range labels {
			ranges := r[label].Bucket(pass.cat)
			fmt.Fprintf(bw, "🏕 %s\n", label)
			fmt.Fprintf(bw, "  **%s:**\n", pass.header)
			for _, key := range ranges.Keys() {
				line := fmt.Sprintf("%s --> %d site(s) available", key, ranges[key])
				if pass.cat == Priority {
					line = ansiBold + line + ansiReset
				}
				fmt.Fprintf(bw, "  %s\n", line)
			}
		}
	}
	return bw.Flush()
}
