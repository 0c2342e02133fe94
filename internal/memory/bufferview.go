package memory

import "fmt"

// BufferView is a byte sub-range of a Buffer. It hands out Accessors by
// further bump allocation. In SoA (contiguous) layout each accessor owns a
// disjoint run of bytes; in AoS (interleaved) layout accessors are fields of
// one element, sharing the view's byte stride.
type BufferView struct {
	name       string
	buffer     *Buffer
	byteOffset int // offset within the buffer
	byteLength int
	byteStride int
	isAoS      bool

	takenBytes       int // cumulative accessor bytes
	takenFieldOffset int // next field offset within one AoS element
	accessors        []*Accessor
}

func newBufferView(buffer *Buffer, byteOffset, byteLength, byteStride int, isAoS bool) *BufferView {
	return &BufferView{
		buffer:     buffer,
		byteOffset: byteOffset,
		byteLength: byteLength,
		byteStride: byteStride,
		isAoS:      isAoS,
	}
}

// TakeAccessor bump-allocates an accessor for count elements of the given
// composition and element type.
func (v *BufferView) TakeAccessor(comp CompositionType, elem ElementType, count int) (*Accessor, error) {
	elemBytes := comp.NumComponents() * elem.ByteSize()
	if elemBytes == 0 || count < 0 {
		return nil, fmt.Errorf("memory: invalid accessor request %s/%s x%d", comp, elem, count)
	}

	byteLengthNeeded := elemBytes * count
	if byteLengthNeeded%4 != 0 {
		padded := alignUp(byteLengthNeeded, 4)
		memoryLogger.Printf("[%s] accessor length %d padded to %d bytes (must be a multiple of 4)", v.debugName(), byteLengthNeeded, padded)
		byteLengthNeeded = padded
	}

	if v.isAoS {
		return v.takeInterleaved(comp, elem, count, elemBytes, byteLengthNeeded)
	}

	offset := v.alignedOffset(v.takenBytes, elem)
	if offset+byteLengthNeeded > v.byteLength {
		return nil, fmt.Errorf("%w: view %q needs %d bytes at offset %d, length is %d",
			ErrCapacityExceeded, v.debugName(), byteLengthNeeded, offset, v.byteLength)
	}
	accessor := newAccessor(v, offset, comp, elem, count, elemBytes)
	v.takenBytes = offset + byteLengthNeeded
	v.accessors = append(v.accessors, accessor)
	return accessor, nil
}

func (v *BufferView) takeInterleaved(comp CompositionType, elem ElementType, count, elemBytes, byteLengthNeeded int) (*Accessor, error) {
	if v.byteStride <= 0 {
		return nil, fmt.Errorf("memory: interleaved view %q has no byte stride", v.debugName())
	}
	fieldOffset := v.alignedOffset(v.takenFieldOffset, elem)
	if fieldOffset+elemBytes > v.byteStride {
		return nil, fmt.Errorf("%w: field of %d bytes at %d overflows stride %d of view %q",
			ErrCapacityExceeded, elemBytes, fieldOffset, v.byteStride, v.debugName())
	}
	if count > 0 && (count-1)*v.byteStride+fieldOffset+elemBytes > v.byteLength {
		return nil, fmt.Errorf("%w: %d interleaved elements overflow view %q of %d bytes",
			ErrCapacityExceeded, count, v.debugName(), v.byteLength)
	}
	if v.takenBytes+byteLengthNeeded > v.byteLength {
		return nil, fmt.Errorf("%w: view %q has %d of %d bytes taken, needs %d more",
			ErrCapacityExceeded, v.debugName(), v.takenBytes, v.byteLength, byteLengthNeeded)
	}

	accessor := newAccessor(v, fieldOffset, comp, elem, count, v.byteStride)
	v.takenFieldOffset = fieldOffset + alignUp(elemBytes, 4)
	v.takenBytes += byteLengthNeeded
	v.accessors = append(v.accessors, accessor)
	return accessor, nil
}

// TakeAccessorWithByteOffset creates an accessor at an explicit offset within
// the view, as described by an importer. A byteStride of 0 means tightly
// packed.
func (v *BufferView) TakeAccessorWithByteOffset(comp CompositionType, elem ElementType, count, byteOffsetInView, byteStride int) (*Accessor, error) {
	elemBytes := comp.NumComponents() * elem.ByteSize()
	if elemBytes == 0 || count < 0 || byteOffsetInView < 0 {
		return nil, fmt.Errorf("memory: invalid accessor request %s/%s x%d at %d", comp, elem, count, byteOffsetInView)
	}
	if byteStride == 0 {
		byteStride = elemBytes
	}
	offset := v.alignedOffset(byteOffsetInView, elem)
	end := offset
	if count > 0 {
		end = offset + (count-1)*byteStride + elemBytes
	}
	if end > v.byteLength {
		return nil, fmt.Errorf("%w: accessor [%d, %d) exceeds view %q of %d bytes",
			ErrCapacityExceeded, offset, end, v.debugName(), v.byteLength)
	}

	accessor := newAccessor(v, offset, comp, elem, count, byteStride)
	if aligned := alignUp(end, 4); aligned > v.takenBytes {
		v.takenBytes = min(aligned, v.byteLength)
	}
	v.accessors = append(v.accessors, accessor)
	return accessor, nil
}

// alignedOffset returns offset (relative to the view) moved forward so that
// the absolute buffer offset satisfies the element's alignment. Corrections
// are logged and never fatal.
func (v *BufferView) alignedOffset(offset int, elem ElementType) int {
	align := elem.alignment()
	absolute := v.byteOffset + offset
	if absolute%align == 0 {
		return offset
	}
	padding := align - absolute%align
	memoryLogger.Printf("[%s] %d padding bytes inserted before %s accessor at offset %d (alignment %d)",
		v.debugName(), padding, elem, offset, align)
	v.buffer.paddingCorrections++
	return offset + padding
}

func (v *BufferView) debugName() string {
	if v.name != "" {
		return v.name
	}
	return fmt.Sprintf("%s@%d", v.buffer.name, v.byteOffset)
}

// SetName attaches a debug name to the view.
func (v *BufferView) SetName(name string) { v.name = name }

// Name returns the debug name of the view.
func (v *BufferView) Name() string { return v.debugName() }

// Buffer returns the owning buffer.
func (v *BufferView) Buffer() *Buffer { return v.buffer }

// ByteOffset returns the view's offset within its buffer.
func (v *BufferView) ByteOffset() int { return v.byteOffset }

// ByteLength returns the reserved length of the view.
func (v *BufferView) ByteLength() int { return v.byteLength }

// TakenBytes returns the cumulative bytes handed to accessors.
func (v *BufferView) TakenBytes() int { return v.takenBytes }

// ByteStride returns the interleaving stride (0 for tightly packed data).
func (v *BufferView) ByteStride() int { return v.byteStride }

// SetByteStride changes the interleaving stride. It only affects accessors
// taken afterwards.
func (v *BufferView) SetByteStride(stride int) { v.byteStride = alignUp(stride, 4) }

// IsAoS reports whether the view stores interleaved elements.
func (v *BufferView) IsAoS() bool { return v.isAoS }

// IsSoA reports whether the view stores one contiguous run per field.
func (v *BufferView) IsSoA() bool { return !v.isAoS }

// Accessors returns the accessors taken so far.
func (v *BufferView) Accessors() []*Accessor { return v.accessors }

// Bytes returns the view's byte range.
func (v *BufferView) Bytes() []byte {
	return v.buffer.raw[v.byteOffset : v.byteOffset+v.byteLength]
}
