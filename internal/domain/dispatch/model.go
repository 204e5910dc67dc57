package dispatch

import (
	"errors"
	"sort"
	"strings"
)

// Status of a completed dispatch.
type Status string

const (
	StatusAllSucceeded   Status = "all_succeeded"
	StatusPartialFailure Status = "partial_failure"
	StatusHardFailure    Status = "hard_failure"
)

// Body formats accepted in a Request.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// Granularity controls how failures are attributed.
type Granularity string

const (
	// GranularityAddress sends one provider call per address; each address
	// has its own outcome. Chunks only bound how much work is scheduled together.
	GranularityAddress Granularity = "address"
	// GranularityChunk sends one provider call per chunk; a failed call
	// fails every address in the chunk.
	GranularityChunk Granularity = "chunk"
)

// Domain errors
var (
	ErrEmptySubject  = errors.New("subject is required")
	ErrEmptyBody     = errors.New("body is required")
	ErrUnknownFormat = errors.New("format must be 'text' or 'markdown'")
)

// Request is a single batch notification. It is never persisted.
type Request struct {
	Subject    string
	Body       string   // untrusted author text
	TextBody   string   // optional plain-text alternative
	Recipients []string // nil means every accepted signup
	Format     string
}

// Validate checks the message content.
// PRE: Request is populated
// POST: Returns nil if subject and body are present and the format is known
func (r Request) Validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return ErrEmptySubject
	}
	if strings.TrimSpace(r.Body) == "" {
		return ErrEmptyBody
	}
	if r.Format != "" && r.Format != FormatText && r.Format != FormatMarkdown {
		return ErrUnknownFormat
	}
	return nil
}

// Failure records one recipient that could not be sent to.
type Failure struct {
	Recipient string `json:"recipient"`
	Reason    string `json:"error"`
}

// Result is the aggregate outcome of a dispatch.
type Result struct {
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Skipped   []string  `json:"skipped,omitempty"`
	Failures  []Failure `json:"failures,omitempty"`
	Calls     int       `json:"providerCalls"`
	Status    Status    `json:"status"`
}

// Merge folds another partial result into r.
// INVARIANT: Merge is commutative over Attempted, Succeeded, Calls and the failure multiset
func (r *Result) Merge(o Result) {
	r.Attempted += o.Attempted
	r.Succeeded += o.Succeeded
	r.Calls += o.Calls
	r.Failures = append(r.Failures, o.Failures...)
}

// Finalize sorts failures and derives Status from the counts.
// PRE: Merge has been called for every chunk
// POST: Status is AllSucceeded when nothing failed, PartialFailure otherwise
func (r *Result) Finalize() {
	sort.SliceStable(r.Failures, func(i, j int) bool {
		return r.Failures[i].Recipient < r.Failures[j].Recipient
	})
	if len(r.Failures) == 0 {
		r.Status = StatusAllSucceeded
		return
	}
	r.Status = StatusPartialFailure
}

// HardFailure returns a result for a dispatch that never started sending.
func HardFailure() Result {
	return Result{Status: StatusHardFailure}
}

// FailedRecipients returns the addresses that failed, in result order.
func (r Result) FailedRecipients() []string {
	out := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.Recipient)
	}
	return out
}

// NormalizeRecipients trims each address, drops anything without an "@",
// and removes case-insensitive duplicates keeping the first occurrence.
// POST: valid preserves input order; skipped lists dropped non-empty entries
func NormalizeRecipients(addrs []string) (valid []string, skipped []string) {
	seen := make(map[string]bool, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if !strings.Contains(a, "@") {
			skipped = append(skipped, a)
			continue
		}
		key := strings.ToLower(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		valid = append(valid, a)
	}
	return valid, skipped
}

// Chunk partitions addrs into ordered slices of at most size elements.
// PRE: size > 0
// POST: concatenating the chunks yields addrs
func Chunk(addrs []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var chunks [][]string
	for i := 0; i < len(addrs); i += size {
		end := i + size
		if end > len(addrs) {
			end = len(addrs)
		}
		chunks = append(chunks, addrs[i:end])
	}
	return chunks
}
