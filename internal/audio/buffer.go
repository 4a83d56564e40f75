// Package audio captures the remote audio of a call as encoded chunks
// streamed out of the page, then converts and transcribes the recording
// with external tools once the call is over.
package audio

import "sync"

// Buffer holds audio chunks in arrival order. Chunks are copied on append,
// so the caller may reuse its slice.
type Buffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

// Append stores chunk after every chunk appended before it.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)

	b.mu.Lock()
	b.chunks = append(b.chunks, c)
	b.size += len(c)
	b.mu.Unlock()
}

// Bytes returns the concatenation of all chunks.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Len returns the number of chunks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Size returns the total number of bytes.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}
