package dataset

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	pathDigestSize   = 8
	idFloatPrecision = 8
)

// BuildUniqueSampleId derives the vector store id of a sample.
// A collision needs the same path digest, coordinates and heading, so
// re-ingesting a dataset always maps a sample onto the same point.
func BuildUniqueSampleId(s *Sample) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(SampleIdentifier(s))).String()
}

// SampleIdentifier is the name fed into the UUIDv5 derivation:
// "<blake2b-64(abs path)>.<lon>.<lat>.<heading>" with 8 decimals each.
func SampleIdentifier(s *Sample) string {
	// size and key are constant and valid, New cannot fail
	h, _ := blake2b.New(pathDigestSize, nil)
	h.Write([]byte(s.AbsoluteImagePath))

	return strings.Join([]string{
		hex.EncodeToString(h.Sum(nil)),
		strconv.FormatFloat(s.Lon, 'f', idFloatPrecision, 64),
		strconv.FormatFloat(s.Lat, 'f', idFloatPrecision, 64),
		strconv.FormatFloat(s.HeadingAngle, 'f', idFloatPrecision, 64),
	}, ".")
}
