package testfixtures

import (
	"fmt"
	"strconv"
	"sync"
)

// IDSequence hands out predictable ids for badge tokens and log entries and
// remembers what it issued, so tests can address tokens they never saw.
type IDSequence struct {
	mu     sync.Mutex
	prefix string
	issued []string
}

// NewIDSequence yields "<prefix>-1", "<prefix>-2" and so on. Empty prefix means "id".
func NewIDSequence(prefix string) *IDSequence {
	if prefix == "" {
		prefix = "id"
	}
	return &IDSequence{prefix: prefix}
}

// Next issues the following id.
func (s *IDSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.prefix + "-" + strconv.Itoa(len(s.issued)+1)
	s.issued = append(s.issued, id)
	return id
}

// Func adapts the sequence to the id generator services take.
func (s *IDSequence) Func() func() string {
	if s == nil {
		return func() string { return "" }
	}
	return s.Next
}

// Issued returns every id handed out so far, oldest first.
func (s *IDSequence) Issued() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.issued...)
}

// Last returns the most recent id, or "" before the first call to Next.
func (s *IDSequence) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.issued) == 0 {
		return ""
	}
	return s.issued[len(s.issued)-1]
}

// RegistrantIDs returns n registrant ids "r-1" through "r-n".
func RegistrantIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("r-%d", i+1)
	}
	return ids
}
