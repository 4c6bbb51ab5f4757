package fingerprint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/desertthunder/musicfp/internal/models"
)

// ErrCorrupt is returned by [Decode] for blobs that were not produced by [Encode].
var ErrCorrupt = errors.New("corrupt fingerprint blob")

var magic = [4]byte{'M', 'F', 'P', '1'}

const headerSize = 4 + 8 + 4

// Encode serialises fp as: magic, duration (float64 bits), point count, points; little endian.
func Encode(fp models.Fingerprint) []byte {
	buf := make([]byte, headerSize+4*len(fp.Points))
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(fp.Duration))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(fp.Points)))
	for i, p := range fp.Points {
		binary.LittleEndian.PutUint32(buf[headerSize+4*i:], p)
	}
	return buf
}

// Decode is the inverse of [Encode].
func Decode(blob []byte) (models.Fingerprint, error) {
	if len(blob) < headerSize {
		return models.Fingerprint{}, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(blob))
	}
	if [4]byte(blob[0:4]) != magic {
		return models.Fingerprint{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, blob[0:4])
	}

	n := int(binary.LittleEndian.Uint32(blob[12:16]))
	if len(blob) != headerSize+4*n {
		return models.Fingerprint{}, fmt.Errorf("%w: want %d points, have %d bytes", ErrCorrupt, n, len(blob)-headerSize)
	}

	fp := models.Fingerprint{
		Duration: math.Float64frombits(binary.LittleEndian.Uint64(blob[4:12])),
		Points:   make([]uint32, n),
	}
	for i := range fp.Points {
		fp.Points[i] = binary.LittleEndian.Uint32(blob[headerSize+4*i:])
	}
	return fp, nil
}
