package pipeline

import (
	"strings"

	"github.com/desertthunder/musicfp/internal/models"
)

// ChunkFiles groups files into chunks of at most size descriptors, keeping only the given
// extensions. An empty extension list keeps every file.
func ChunkFiles(files []models.FileDescriptor, size int, extensions []string) []models.Chunk {
	if size <= 0 {
		size = 1
	}

	keep := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		keep[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))] = true
	}

	var chunks []models.Chunk
	var current []models.FileDescriptor
	for _, f := range files {
		if len(keep) > 0 && !keep[f.Format()] {
			continue
		}
		current = append(current, f)
		if len(current) == size {
			chunks = append(chunks, models.Chunk{Seq: len(chunks), Files: current})
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, models.Chunk{Seq: len(chunks), Files: current})
	}
	return chunks
}
