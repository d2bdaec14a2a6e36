package container

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

const wantPayload = "hello radar world, this is a test payload for bzip2 decompression!"

// rawBzip2Hex is bz2.compress(wantPayload, 9) from a reference bzip2 encoder.
const rawBzip2Hex = "425a683931415926535906c505b100000e9980600410003f67dcb0200048a8f4f49a9e5190fd44f508869a001a310957ae4bbb16cc328031c1deabeb723097916b444de8943ad4a44ccc7a241bc03c9d26f8bb9229c2848036282d88"

// ldmContainerHex is a 24-byte volume header (filename "ARCHIVE2.001",
// Julian day 20863, ms-of-day 58964000, ICAO "KTLX") followed by a
// control word framing the bzip2 block above, then a zero terminator.
const ldmContainerHex = "41524348495645322e3030310000517f0383b8204b544c580000005c" +
	rawBzip2Hex +
	"00000000"

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestDecompressPassthrough(t *testing.T) {
	data := []byte("not compressed at all, just plain bytes")
	out, err := Decompress(data)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestDecompressRawBzip2(t *testing.T) {
	raw := mustHex(t, rawBzip2Hex)
	out, err := Decompress(raw)
	require.NoError(t, err)
	require.Equal(t, wantPayload, string(out))
}

func TestDecompressLDMContainer(t *testing.T) {
	ldm := mustHex(t, ldmContainerHex)
	out, err := Decompress(ldm)
	require.NoError(t, err)
	require.Len(t, out, VolumeHeaderSize+len(wantPayload))
	require.Equal(t, ldm[:VolumeHeaderSize], out[:VolumeHeaderSize])
	require.Equal(t, wantPayload, string(out[VolumeHeaderSize:]))
}

func TestDecompressLDMTruncatedControlWord(t *testing.T) {
	ldm := mustHex(t, ldmContainerHex)
	truncated := ldm[:VolumeHeaderSize+2]
	_, err := Decompress(truncated)
	require.Error(t, err)
}

func TestDecompressShortVolumeHeader(t *testing.T) {
	_, err := decompressLDM([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrMalformedContainer)
}
