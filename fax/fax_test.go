package fax

import (
	"bytes"
	"testing"
)

func packBits(bits []bool, raster int) []byte {
	out := make([]byte, raster)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

func TestRoundTripAllWhite(t *testing.T) {
	width, height := 64, 4
	raster := (width + 7) / 8
	data := make([]byte, raster*height)
	enc := Encode(data, width, height, raster)
	got := Decode(enc, width, height)
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch for all-white bitmap")
	}
}

func TestRoundTripAllBlack(t *testing.T) {
	width, height := 40, 3
	raster := (width + 7) / 8
	data := make([]byte, raster*height)
	for i := range data {
		data[i] = 0xff
	}
	enc := Encode(data, width, height, raster)
	got := Decode(enc, width, height)
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch for all-black bitmap")
	}
}

func TestRoundTripPattern(t *testing.T) {
	width, height := 32, 5
	raster := (width + 7) / 8
	rows := [][]bool{
		mkRow(width, func(x int) bool { return x%2 == 0 }),
		mkRow(width, func(x int) bool { return x < 10 }),
		mkRow(width, func(x int) bool { return false }),
		mkRow(width, func(x int) bool { return x >= 20 && x < 25 }),
		mkRow(width, func(x int) bool { return true }),
	}
	data := make([]byte, raster*height)
	for y, row := range rows {
		copy(data[y*raster:(y+1)*raster], packBits(row, raster))
	}
	enc := Encode(data, width, height, raster)
	got := Decode(enc, width, height)
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch:\n got=%x\nwant=%x", got, data)
	}
}

func mkRow(width int, f func(int) bool) []bool {
	row := make([]bool, width)
	for x := range row {
		row[x] = f(x)
	}
	return row
}
