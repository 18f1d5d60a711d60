package ids

import (
	"io"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out monotonic ULIDs. Safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator builds a generator seeded deterministically; now defaults to time.Now.
func NewGenerator(seed int64, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{
		entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(seed)), 0),
		now:     now,
	}
}

// New returns the next identifier.
func (g *Generator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy).String()
}

var defaultGenerator = NewGenerator(time.Now().UnixNano(), nil)

// New returns a lexicographically sortable identifier used for request and audit ids.
func New() string {
	return defaultGenerator.New()
}

// Valid reports whether s is a canonical ULID string.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time extracts the millisecond timestamp embedded in id.
func Time(id string) (time.Time, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(u.Time()).UTC(), nil
}
