package scrape

import "time"

// SourceReport counts what happened to one source's candidates.
type SourceReport struct {
	Source     string
	StoreID    int64
	Pages      int
	Candidates int
	Skipped    int // no name or no sale price
	Invalid    int // failed normalization
	Duplicates int // repeated (name, store) within the run
	Staged     int
	Failed     int // staging write errors
	Paths      []string
	Err        error
	Duration   time.Duration
}

// Report is the outcome of one extraction run.
type Report struct {
	Sources []SourceReport
}

// Staged returns the number of deals written across all sources.
func (r *Report) Staged() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Staged
	}
	return n
}

// Failed returns the sources that aborted.
func (r *Report) Failed() []SourceReport {
	var out []SourceReport
	for _, s := range r.Sources {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}
