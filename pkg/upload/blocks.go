// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package upload

import (
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/kiln/pkg/sproto"
)

// ErrShortRead is wrapped by errors for blocks that cannot be sent as a
// full 512-byte payload
var ErrShortRead = errors.New("short read")

// FinalBlockPolicy selects what happens to a final block shorter than 512 bytes
type FinalBlockPolicy int

const (
	// RejectShortFinal fails the upload with a ShortRead error
	RejectShortFinal FinalBlockPolicy = iota
	// PadShortFinal fills the rest of the final block with zero bytes
	PadShortFinal
)

func (p FinalBlockPolicy) String() string {
	switch p {
	case RejectShortFinal:
		return "reject"
	case PadShortFinal:
		return "pad"
	default:
		return fmt.Sprintf("FinalBlockPolicy(%d)", int(p))
	}
}

// BlockSource yields the firmware image one block at a time
type BlockSource interface {
	// Next returns the next 512-byte block, or io.EOF when the image is exhausted
	Next() ([]byte, error)

	// TotalBlocks returns the number of blocks the image will produce
	TotalBlocks() int

	// Validate reports, before any I/O, whether the image can be sent as-is
	Validate() error
}

// BlockReader reads a firmware image of known size from a sequential reader
type BlockReader struct {
	r      io.Reader
	size   int64
	offset int64
	policy FinalBlockPolicy
	done   bool
}

// NewBlockReader creates a BlockReader over r. size is the image length
// as reported by the file system; it sets the block count and nothing past
// it is read, even if r has grown since.
func NewBlockReader(r io.Reader, size int64, policy FinalBlockPolicy) *BlockReader {
	return &BlockReader{
		r:      io.LimitReader(r, max(size, 0)),
		size:   size,
		policy: policy,
	}
}

// TotalBlocks returns ceil(size / 512)
func (b *BlockReader) TotalBlocks() int {
	if b.size <= 0 {
		return 0
	}
	return int((b.size + sproto.BlockSize - 1) / sproto.BlockSize)
}

// Size returns the image size passed to NewBlockReader
func (b *BlockReader) Size() int64 {
	return b.size
}

// Offset returns the number of image bytes consumed so far
func (b *BlockReader) Offset() int64 {
	return b.offset
}

// Validate rejects images whose size is not a multiple of the block size
// when the policy does not allow padding
func (b *BlockReader) Validate() error {
	if b.size < 0 {
		return fmt.Errorf("invalid image size %d", b.size)
	}
	if rem := b.size % sproto.BlockSize; rem != 0 && b.policy == RejectShortFinal {
		return fmt.Errorf("%w: image is %d bytes, final block has %d of %d bytes",
			ErrShortRead, b.size, rem, sproto.BlockSize)
	}
	return nil
}

// Next returns the next block. Each call allocates a fresh buffer.
func (b *BlockReader) Next() ([]byte, error) {
	if b.done || b.offset >= b.size {
		b.done = true
		return nil, io.EOF
	}

	block := make([]byte, sproto.BlockSize)
	n, err := io.ReadFull(b.r, block)
	b.offset += int64(n)

	switch {
	case err == nil:
		return block, nil

	case errors.Is(err, io.EOF):
		// Zero bytes read
		b.done = true
		if b.offset < b.size {
			return nil, fmt.Errorf("%w: source ended at byte %d of %d", ErrShortRead, b.offset, b.size)
		}
		return nil, io.EOF

	case errors.Is(err, io.ErrUnexpectedEOF):
		b.done = true
		if b.offset < b.size {
			return nil, fmt.Errorf("%w: source ended at byte %d of %d", ErrShortRead, b.offset, b.size)
		}
		if b.policy == PadShortFinal {
			// make() already zeroed the tail
			return block, nil
		}
		return nil, fmt.Errorf("%w: final block has %d of %d bytes", ErrShortRead, n, sproto.BlockSize)

	default:
		return nil, fmt.Errorf("read firmware at byte %d: %w", b.offset, err)
	}
}
