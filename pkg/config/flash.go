package config

import (
	"errors"
	"fmt"
	"sync"
)

// PageSize is the size of the reserved configuration flash page.
const PageSize = 1024

// Flash abstracts the single reserved page holding the configuration block.
// The firmware backs it with the on-chip flash controller; host tests use
// MemFlash.
type Flash interface {
	// Erase resets the whole page to the erased state (0xFF).
	Erase() error
	// Write programs p at the start of an erased page.
	Write(p []byte) error
	// Read fills p from the start of the page.
	Read(p []byte) error
}

// MemFlash is an in-memory flash page for host-side tests. It models the
// erased state and supports fault injection for torn or failed writes.
type MemFlash struct {
	mu   sync.Mutex
	page [PageSize]byte

	// FailErase and FailWrite force the next matching operation to fail.
	FailErase bool
	FailWrite bool
	// TornAfter, when positive, makes the next Write stop after that many
	// bytes and report failure, simulating an interrupted page write.
	TornAfter int
}

// ErrFlashFault is reported by injected MemFlash failures.
var ErrFlashFault = errors.New("flash fault")

// NewMemFlash returns an erased in-memory page.
func NewMemFlash() *MemFlash {
	f := &MemFlash{}
	for i := range f.page {
		f.page[i] = 0xFF
	}
	return f
}

func (f *MemFlash) Erase() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailErase {
		f.FailErase = false
		return fmt.Errorf("erase: %w", ErrFlashFault)
	}
	for i := range f.page {
		f.page[i] = 0xFF
	}
	return nil
}

func (f *MemFlash) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(p) > PageSize {
		return fmt.Errorf("write of %d bytes exceeds page: %w", len(p), ErrFlashFault)
	}
	if f.FailWrite {
		f.FailWrite = false
		return fmt.Errorf("write: %w", ErrFlashFault)
	}
	if f.TornAfter > 0 && f.TornAfter < len(p) {
		n := f.TornAfter
		f.TornAfter = 0
		copy(f.page[:n], p[:n])
		return fmt.Errorf("write interrupted after %d bytes: %w", n, ErrFlashFault)
	}
	copy(f.page[:], p)
	return nil
}

func (f *MemFlash) Read(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(p) > PageSize {
		return fmt.Errorf("read of %d bytes exceeds page: %w", len(p), ErrFlashFault)
	}
	copy(p, f.page[:])
	return nil
}

// Corrupt XORs the byte at off, simulating stored-block damage.
func (f *MemFlash) Corrupt(off int, mask byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.page[off] ^= mask
}
