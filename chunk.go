package csvkit

import (
	"context"
	"iter"
)

// maxPrealloc caps the capacity reserved up front for one batch.
const maxPrealloc = 4096

// Chunk groups seq into batches of size items. Every batch but the last has
// exactly size items, no empty batch is produced and each batch owns its
// backing array, so callers may keep or modify batches freely.
//
// A size below 1 yields a single configuration error (CFG001) without
// consuming seq. An error from seq is forwarded and ends the sequence; the
// partially filled batch is dropped.
func Chunk[T any](seq iter.Seq2[T, error], size int) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		if size <= 0 {
			yield(nil, configError("chunk", CodeChunkSize, "chunk size must be positive, got %d", size))
			return
		}

		capacity := min(size, maxPrealloc)
		batch := make([]T, 0, capacity)
		for item, err := range seq {
			if err != nil {
				yield(nil, err)
				return
			}
			batch = append(batch, item)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = make([]T, 0, capacity)
			}
		}

		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

// RecordChunks reads path as batches of at most size Records.
func RecordChunks(ctx context.Context, path string, size int, opts Options) iter.Seq2[[]Record, error] {
	return Chunk(Records(ctx, path, opts), size)
}
