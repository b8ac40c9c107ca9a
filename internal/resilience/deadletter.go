package resilience

import (
	"bufio"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrorClass says whether a failed item is worth replaying as is.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

// ClassifyError reports failures IsRetryable accepts as transient, and
// everything else as permanent.
func ClassifyError(err error) ErrorClass {
	if IsRetryable(err) {
		return ClassTransient
	}
	return ClassPermanent
}

// DeadLetter is one item that failed and was set aside.
type DeadLetter struct {
	// Key locates the item again, e.g. a staged file path.
	Key      string     `json:"key"`
	ID       string     `json:"id,omitempty"`
	Name     string     `json:"name,omitempty"`
	Stage    string     `json:"stage"`
	Class    ErrorClass `json:"class"`
	Error    string     `json:"error"`
	FailedAt time.Time  `json:"failed_at"`
}

// Replayable reports whether the failure may clear on its own.
func (d DeadLetter) Replayable() bool {
	return d.Class == ClassTransient
}

// DeadLetterLog appends dead letters to w as JSON lines. It is safe for
// concurrent use.
type DeadLetterLog struct {
	mu  sync.Mutex
	enc *json.Encoder
	n   int
}

// NewDeadLetterLog writes to w.
func NewDeadLetterLog(w io.Writer) *DeadLetterLog {
	return &DeadLetterLog{enc: json.NewEncoder(w)}
}

// Add writes d, stamping FailedAt when unset.
func (l *DeadLetterLog) Add(d DeadLetter) error {
	if d.FailedAt.IsZero() {
		d.FailedAt = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(d); err != nil {
		return eris.Wrapf(err, "resilience: write dead letter %s", d.Key)
	}
	l.n++
	return nil
}

// Len is the number of letters written.
func (l *DeadLetterLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// ReadDeadLetters parses a log written by DeadLetterLog. Blank lines are
// skipped.
func ReadDeadLetters(r io.Reader) ([]DeadLetter, error) {
	var out []DeadLetter
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var d DeadLetter
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, eris.Wrapf(err, "resilience: dead letter line %d", line)
		}
		out = append(out, d)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "resilience: read dead letters")
	}
	return out, nil
}
