package memory

import (
	"fmt"
	"unsafe"
)

// Buffer owns one fixed-size, zero-initialised byte arena for a single
// allocation purpose. Views are handed out by a one-way bump pointer and are
// never reclaimed for the lifetime of the buffer.
type Buffer struct {
	name       string
	use        BufferUse
	raw        []byte
	takenBytes int
	views      []*BufferView
	version    uint64 // bumped on every mutation, used for GPU re-upload

	paddingCorrections int
}

// NewBuffer creates a zero-initialised arena of byteLength bytes. The backing
// store is 8-byte aligned so that every 8-byte element type can be viewed in
// place.
func NewBuffer(byteLength int, use BufferUse, name string) *Buffer {
	if byteLength < 0 {
		byteLength = 0
	}
	byteLength = alignUp(byteLength, 4)
	words := make([]uint64, (byteLength+7)/8)
	var raw []byte
	if len(words) > 0 {
		raw = unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), byteLength)
	}
	return &Buffer{name: name, use: use, raw: raw}
}

// TakeBufferView bump-allocates a view. Both the requested length and the
// stride are rounded up to a multiple of 4 bytes.
func (b *Buffer) TakeBufferView(byteLengthNeeded, byteStride int, isAoS bool) (*BufferView, error) {
	if byteLengthNeeded < 0 || byteStride < 0 {
		return nil, fmt.Errorf("%w: negative view request (%d bytes, stride %d)", ErrInvalidRange, byteLengthNeeded, byteStride)
	}
	if byteLengthNeeded%4 != 0 {
		padded := alignUp(byteLengthNeeded, 4)
		memoryLogger.Printf("[%s] view length %d padded to %d bytes", b.name, byteLengthNeeded, padded)
		byteLengthNeeded = padded
	}
	if byteStride%4 != 0 {
		padded := alignUp(byteStride, 4)
		memoryLogger.Printf("[%s] view stride %d padded to %d bytes", b.name, byteStride, padded)
		byteStride = padded
	}

	if b.takenBytes+byteLengthNeeded > len(b.raw) {
		return nil, fmt.Errorf("%w: buffer %q (%s) needs %d bytes, %d of %d remaining",
			ErrCapacityExceeded, b.name, b.use, byteLengthNeeded, len(b.raw)-b.takenBytes, len(b.raw))
	}

	view := newBufferView(b, b.takenBytes, byteLengthNeeded, byteStride, isAoS)
	b.takenBytes += byteLengthNeeded
	b.views = append(b.views, view)
	memoryLogger.Printf("[%s] took view [%d, %d) stride=%d aos=%t", b.name, view.byteOffset, view.byteOffset+view.byteLength, byteStride, isAoS)
	return view, nil
}

// TakeBufferViewWithByteOffset maps a view onto an explicitly positioned
// range, as supplied by an asset importer whose data is already laid out in
// the arena. The bump pointer advances past the range if needed. A range that
// intersects a view already taken is rejected with ErrInvalidRange.
func (b *Buffer) TakeBufferViewWithByteOffset(byteOffset, byteLength, byteStride int, isAoS bool) (*BufferView, error) {
	if byteOffset < 0 || byteLength < 0 || byteStride < 0 {
		return nil, fmt.Errorf("%w: view [%d, +%d)", ErrInvalidRange, byteOffset, byteLength)
	}
	if byteOffset%4 != 0 {
		return nil, fmt.Errorf("%w: view offset %d is not 4-byte aligned", ErrInvalidRange, byteOffset)
	}
	byteLength = alignUp(byteLength, 4)
	byteStride = alignUp(byteStride, 4)
	end := byteOffset + byteLength
	if end > len(b.raw) {
		return nil, fmt.Errorf("%w: buffer %q needs [%d, %d), has %d bytes",
			ErrCapacityExceeded, b.name, byteOffset, end, len(b.raw))
	}
	for _, v := range b.views {
		if byteOffset < v.byteOffset+v.byteLength && v.byteOffset < end {
			return nil, fmt.Errorf("%w: buffer %q view [%d, %d) overlaps [%d, %d)",
				ErrInvalidRange, b.name, byteOffset, end, v.byteOffset, v.byteOffset+v.byteLength)
		}
	}

	view := newBufferView(b, byteOffset, byteLength, byteStride, isAoS)
	if end > b.takenBytes {
		b.takenBytes = end
	}
	b.views = append(b.views, view)
	return view, nil
}

// Name returns the debug name of the buffer.
func (b *Buffer) Name() string { return b.name }

// Use returns the allocation purpose of the buffer.
func (b *Buffer) Use() BufferUse { return b.use }

// ByteLength returns the total arena size.
func (b *Buffer) ByteLength() int { return len(b.raw) }

// TakenBytes returns the position of the bump pointer.
func (b *Buffer) TakenBytes() int { return b.takenBytes }

// Bytes exposes the whole arena, e.g. for GPU upload.
func (b *Buffer) Bytes() []byte { return b.raw }

// TakenRegion returns the allocated prefix of the arena.
func (b *Buffer) TakenRegion() []byte { return b.raw[:b.takenBytes] }

// Views returns the views taken so far, in allocation order.
func (b *Buffer) Views() []*BufferView { return b.views }

// Version returns a counter bumped on every recorded mutation.
func (b *Buffer) Version() uint64 { return b.version }

// PaddingCorrections returns how many alignment corrections were applied to
// accessors in this buffer.
func (b *Buffer) PaddingCorrections() int { return b.paddingCorrections }

// MarkDirty records a mutation made through a borrowed slice.
func (b *Buffer) MarkDirty() { b.version++ }
