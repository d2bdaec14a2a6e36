package volumetric

import "testing"

func TestEncodeSparseGrid(t *testing.T) {
	cells := make([]uint8, 16)
	cells[0] = 42
	cells[7] = 84
	cells[8] = 99

	got := Encode(cells)

	wantBitmask := []byte{0x81, 0x80}
	if len(got.Bitmask) != len(wantBitmask) {
		t.Fatalf("bitmask length = %d, want %d", len(got.Bitmask), len(wantBitmask))
	}
	for i := range wantBitmask {
		if got.Bitmask[i] != wantBitmask[i] {
			t.Errorf("bitmask[%d] = %#x, want %#x", i, got.Bitmask[i], wantBitmask[i])
		}
	}

	wantValues := []uint8{42, 84, 99}
	if len(got.Values) != len(wantValues) {
		t.Fatalf("values length = %d, want %d", len(got.Values), len(wantValues))
	}
	for i := range wantValues {
		if got.Values[i] != wantValues[i] {
			t.Errorf("values[%d] = %d, want %d", i, got.Values[i], wantValues[i])
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cells := make([]uint8, 97)
	cells[0] = 5
	cells[50] = 200
	cells[96] = 1

	enc := Encode(cells)
	got := Decode(enc.Length, enc.Bitmask, enc.Values)

	if len(got) != len(cells) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(cells))
	}
	for i := range cells {
		if got[i] != cells[i] {
			t.Errorf("cell[%d] = %d, want %d", i, got[i], cells[i])
		}
	}
}

func TestEncodeEmptyGrid(t *testing.T) {
	enc := Encode(nil)
	if len(enc.Bitmask) != 0 || len(enc.Values) != 0 {
		t.Fatalf("expected empty encoding for empty grid, got %+v", enc)
	}
}

func TestEncodeSetBitCountMatchesValuesLength(t *testing.T) {
	cells := []uint8{0, 1, 0, 2, 3, 0, 0, 4, 5}
	enc := Encode(cells)

	bits := 0
	for i := range cells {
		byteIdx := i / 8
		bit := (enc.Bitmask[byteIdx] >> uint(7-(i%8))) & 1
		bits += int(bit)
	}
	if bits != len(enc.Values) {
		t.Errorf("set bit count = %d, want %d", bits, len(enc.Values))
	}
}
