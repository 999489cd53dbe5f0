package testutil

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"sync"
	"testing"

	"github.com/roach88/zkapauthz/internal/nodeconfig"
)

// VoucherSequence produces distinct, syntactically valid voucher numbers in
// a fixed order.
//
// The same sequence yields the same numbers on every run, which keeps golden
// output stable. Thread-safety: all methods are safe for concurrent use.
type VoucherSequence struct {
	mu   sync.Mutex
	next uint64
}

// NewVoucherSequence creates a sequence whose first number encodes 1.
func NewVoucherSequence() *VoucherSequence {
	return &VoucherSequence{}
}

// Next returns the next voucher number.
func (s *VoucherSequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return VoucherNumber(s.next)
}

// Reset restarts the sequence.
func (s *VoucherSequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
}

// VoucherNumber returns the voucher number encoding n in its final eight
// bytes.
func VoucherNumber(n uint64) string {
	var raw [32]byte
	binary.BigEndian.PutUint64(raw[24:], n)
	return base64.URLEncoding.EncodeToString(raw[:])
}

// RandomVoucher returns a voucher number made from 32 random bytes.
func RandomVoucher(t testing.TB) string {
	t.Helper()
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		t.Fatalf("read random bytes: %v", err)
	}
	return base64.URLEncoding.EncodeToString(raw[:])
}

// NodeConfig returns an in-memory node configuration whose private
// directory is a fresh temporary directory.
func NodeConfig(t testing.TB, sections nodeconfig.Sections) *nodeconfig.Memory {
	t.Helper()
	if sections == nil {
		sections = nodeconfig.Sections{}
	}
	return &nodeconfig.Memory{
		PrivateDir: t.TempDir(),
		Sections:   sections,
	}
}
