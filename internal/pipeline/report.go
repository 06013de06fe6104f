package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// Result is the outcome of one row group insert: a song, an artist or one
// user. Err is nil on success.
type Result struct {
	Table string
	Key   string
	Err   error
}

func (r Result) String() string {
	if r.Err == nil {
		return fmt.Sprintf("%s[%s] ok", r.Table, r.Key)
	}
	return fmt.Sprintf("%s[%s] failed: %v", r.Table, r.Key, r.Err)
}

// FileReport summarizes one processed file.
type FileReport struct {
	Path string

	// Inserted counts successful statements per table, including rows later
	// discarded by a rollback (see Discarded).
	Inserted map[string]int
	// Failed holds every row group that did not insert.
	Failed []Result
	// Discarded counts rows rolled back because a later row group in the
	// same file failed.
	Discarded int

	LookupHits   int
	LookupMisses int
}

func newFileReport(path string) FileReport {
	return FileReport{Path: path, Inserted: map[string]int{}}
}

// Rows returns the total inserted statement count.
func (r FileReport) Rows() int {
	n := 0
	for _, v := range r.Inserted {
		n += v
	}
	return n
}

// PassReport aggregates the file reports of one Process call.
type PassReport struct {
	Pass      string
	Root      string
	Files     int
	Processed int
	Inserted  map[string]int
	Failed    []Result
	Discarded int
}

func (p *PassReport) add(fr FileReport) {
	if p.Inserted == nil {
		p.Inserted = map[string]int{}
	}
	p.Processed++
	for k, v := range fr.Inserted {
		p.Inserted[k] += v
	}
	p.Failed = append(p.Failed, fr.Failed...)
	p.Discarded += fr.Discarded
}

// formatCounts renders a count map as "a=1 b=2" in key order.
func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}
