package ymodem

import (
	"fmt"
	"os"
	"sync"
)

// ErasedByte is the value of a prepared (erased) storage cell.
const ErasedByte = 0xFF

// Region is a contiguous range of non-volatile storage.
type Region struct {
	Start uint32
	Size  uint32
}

// End returns the first address past the region.
func (r Region) End() uint32 {
	return r.Start + r.Size
}

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Start && addr-r.Start < r.Size
}

func (r Region) String() string {
	return fmt.Sprintf("[0x%08x, 0x%08x)", r.Start, r.End())
}

// Storage is the backend a received file is committed to.
// Calls are synchronous; asynchronous media must complete before returning.
type Storage interface {
	// Prepare erases the region so it can be programmed.
	Prepare(region Region) error

	// Program programs one byte at an absolute address.
	Program(addr uint32, b byte) error

	// Peek reads one byte back, used for verification.
	Peek(addr uint32) (byte, error)
}

// ExclusiveAccess is implemented by backends that must be unlocked before an erase
// or program sequence, such as on-chip flash. Acquire and Release bracket each erase
// and each packet write.
type ExclusiveAccess interface {
	Acquire() error
	Release()
}

// MemoryStorage is a RAM-backed Storage.
type MemoryStorage struct {
	mu     sync.Mutex
	region Region
	data   []byte

	prepares int
	writes   int
}

// NewMemoryStorage creates a memory backend covering region. The contents start out
// erased.
func NewMemoryStorage(region Region) *MemoryStorage {
	m := &MemoryStorage{
		region: region,
		data:   make([]byte, region.Size),
	}
	for i := range m.data {
		m.data[i] = ErasedByte
	}
	return m
}

// Prepare implements Storage.
func (m *MemoryStorage) Prepare(region Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if region.Size > 0 && (!m.region.Contains(region.Start) || !m.region.Contains(region.End()-1)) {
		return fmt.Errorf("erase %s outside %s", region, m.region)
	}
	for addr := region.Start; addr != region.End(); addr++ {
		m.data[addr-m.region.Start] = ErasedByte
	}
	m.prepares++
	return nil
}

// Program implements Storage.
func (m *MemoryStorage) Program(addr uint32, b byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.region.Contains(addr) {
		return fmt.Errorf("write 0x%08x outside %s", addr, m.region)
	}
	m.data[addr-m.region.Start] = b
	m.writes++
	return nil
}

// Peek implements Storage.
func (m *MemoryStorage) Peek(addr uint32) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.region.Contains(addr) {
		return 0, fmt.Errorf("read 0x%08x outside %s", addr, m.region)
	}
	return m.data[addr-m.region.Start], nil
}

// Bytes returns a copy of the region contents.
func (m *MemoryStorage) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Prepares returns the number of successful Prepare calls.
func (m *MemoryStorage) Prepares() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepares
}

// Writes returns the number of successful Program calls.
func (m *MemoryStorage) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// FileStorage maps a region onto an image file: address Start is file offset 0.
type FileStorage struct {
	mu     sync.Mutex
	file   *os.File
	region Region
}

// OpenFileStorage opens (creating if needed) an image file for region.
func OpenFileStorage(path string, region Region) (*FileStorage, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &FileStorage{file: file, region: region}, nil
}

// Prepare implements Storage by filling the region with ErasedByte.
func (f *FileStorage) Prepare(region Region) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if region.Size == 0 {
		return nil
	}
	if !f.region.Contains(region.Start) || !f.region.Contains(region.End()-1) {
		return fmt.Errorf("erase %s outside %s", region, f.region)
	}
	const chunk = 4096
	buf := make([]byte, chunk)
	for i := range buf {
		buf[i] = ErasedByte
	}
	off := int64(region.Start - f.region.Start)
	for left := int64(region.Size); left > 0; {
		n := int64(chunk)
		if left < n {
			n = left
		}
		if _, err := f.file.WriteAt(buf[:n], off); err != nil {
			return err
		}
		off += n
		left -= n
	}
	return f.file.Sync()
}

// Program implements Storage.
func (f *FileStorage) Program(addr uint32, b byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.region.Contains(addr) {
		return fmt.Errorf("write 0x%08x outside %s", addr, f.region)
	}
	_, err := f.file.WriteAt([]byte{b}, int64(addr-f.region.Start))
	return err
}

// Peek implements Storage.
func (f *FileStorage) Peek(addr uint32) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.region.Contains(addr) {
		return 0, fmt.Errorf("read 0x%08x outside %s", addr, f.region)
	}
	var buf [1]byte
	if _, err := f.file.ReadAt(buf[:], int64(addr-f.region.Start)); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// Close flushes and closes the image file.
func (f *FileStorage) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.file.Sync(); err != nil {
		f.file.Close()
		return err
	}
	return f.file.Close()
}
