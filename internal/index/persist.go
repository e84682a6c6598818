package index

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/finsight/finsight/internal/chunker"
	"github.com/finsight/finsight/internal/faults"
)

// Persisted layout: two companion artifacts per knowledge base name.
// <path>.vec holds the vector data (magic, dimensionality, row count,
// little-endian float32 rows); <path>.chunks.json holds the parallel chunk
// records. They are always written and read as a pair; a count mismatch
// between them fails the load as a corrupt index.

const (
	vecSuffix   = ".vec"
	chunkSuffix = ".chunks.json"
)

var vecMagic = [4]byte{'F', 'S', 'V', '1'}

type chunkArtifact struct {
	Count  int             `json:"count"`
	Chunks []chunker.Chunk `json:"chunks"`
}

// Save serializes the index to the artifact pair for path. Both files are
// written to a temp name and renamed into place, so a crash mid-write leaves
// any previously saved pair valid.
func (ix *Index) Save(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating knowledge base directory: %w", err)
		}
	}

	if err := writeAtomic(path+vecSuffix, ix.encodeVectors()); err != nil {
		return fmt.Errorf("writing vector artifact: %w", err)
	}

	meta, err := json.Marshal(chunkArtifact{Count: len(ix.chunks), Chunks: ix.chunks})
	if err != nil {
		return fmt.Errorf("encoding chunk artifact: %w", err)
	}
	if err := writeAtomic(path+chunkSuffix, meta); err != nil {
		return fmt.Errorf("writing chunk artifact: %w", err)
	}
	return nil
}

// Load replaces the index contents with the artifact pair at path. On any
// failure the in-memory state is left untouched.
func (ix *Index) Load(path string) error {
	vecData, err := os.ReadFile(path + vecSuffix)
	if err != nil {
		return fmt.Errorf("reading vector artifact: %w", err)
	}
	dim, vectors, err := decodeVectors(vecData)
	if err != nil {
		return err
	}

	metaData, err := os.ReadFile(path + chunkSuffix)
	if err != nil {
		return fmt.Errorf("reading chunk artifact: %w", err)
	}
	var meta chunkArtifact
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return fmt.Errorf("decoding chunk artifact: %w: %v", faults.ErrCorruptIndex, err)
	}

	if len(meta.Chunks) != meta.Count || len(vectors) != meta.Count {
		return fmt.Errorf("artifact pair disagrees: %d vectors, %d chunks (recorded %d): %w",
			len(vectors), len(meta.Chunks), meta.Count, faults.ErrCorruptIndex)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.dim = dim
	ix.vectors = vectors
	ix.chunks = meta.Chunks
	return nil
}

// Exists reports whether the artifact pair for path is present on disk.
func Exists(path string) bool {
	if _, err := os.Stat(path + vecSuffix); err != nil {
		return false
	}
	_, err := os.Stat(path + chunkSuffix)
	return err == nil
}

func (ix *Index) encodeVectors() []byte {
	buf := make([]byte, 0, 12+len(ix.vectors)*ix.dim*4)
	buf = append(buf, vecMagic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(ix.dim))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ix.vectors)))
	for _, v := range ix.vectors {
		for _, f := range v {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
		}
	}
	return buf
}

func decodeVectors(data []byte) (int, [][]float32, error) {
	if len(data) < 12 || [4]byte(data[:4]) != vecMagic {
		return 0, nil, fmt.Errorf("vector artifact has no valid header: %w", faults.ErrCorruptIndex)
	}
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	count := int(binary.LittleEndian.Uint32(data[8:12]))

	rows := data[12:]
	if dim < 0 || count < 0 || len(rows) != dim*count*4 {
		return 0, nil, fmt.Errorf("vector artifact truncated: %d payload bytes for %dx%d: %w",
			len(rows), count, dim, faults.ErrCorruptIndex)
	}

	vectors := make([][]float32, count)
	for i := 0; i < count; i++ {
		v := make([]float32, dim)
		off := i * dim * 4
		for j := 0; j < dim; j++ {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(rows[off+j*4:]))
		}
		vectors[i] = v
	}
	if count == 0 {
		dim = 0
	}
	return dim, vectors, nil
}

// writeAtomic writes data to a temp file and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%v: %w", err, faults.ErrTransientIO)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%v: %w", err, faults.ErrTransientIO)
	}
	return nil
}
