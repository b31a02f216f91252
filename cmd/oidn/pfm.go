package main

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// readPFM loads a color Portable FloatMap. PFM stores rows bottom-up;
// the returned pixels are top-down interleaved RGB.
func readPFM(path string) ([]float32, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic string
	var w, h int
	var scale float64
	if _, err := fmt.Fscan(r, &magic, &w, &h, &scale); err != nil {
		return nil, 0, 0, fmt.Errorf("pfm %s: bad header: %w", path, err)
	}
	if magic != "PF" {
		return nil, 0, 0, fmt.Errorf("pfm %s: not a color float map (%q)", path, magic)
	}
	if w <= 0 || h <= 0 {
		return nil, 0, 0, fmt.Errorf("pfm %s: bad extent %dx%d", path, w, h)
	}
	if _, err := r.ReadByte(); err != nil { // whitespace after the scale
		return nil, 0, 0, err
	}

	order := binary.ByteOrder(binary.BigEndian)
	if scale < 0 {
		order = binary.LittleEndian
	}
	raw := make([]byte, w*h*3*4)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, 0, 0, fmt.Errorf("pfm %s: truncated payload: %w", path, err)
	}

	pix := make([]float32, w*h*3)
	for y := 0; y < h; y++ {
		srcRow := (h - 1 - y) * w * 3 * 4
		for i := 0; i < w*3; i++ {
			bits := order.Uint32(raw[srcRow+i*4:])
			pix[y*w*3+i] = math.Float32frombits(bits)
		}
	}
	return pix, w, h, nil
}

// writePFM stores top-down interleaved RGB pixels as a little-endian
// color Portable FloatMap.
func writePFM(path string, pix []float32, w, h int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "PF\n%d %d\n-1.0\n", w, h)
	row := make([]byte, w*3*4)
	for y := h - 1; y >= 0; y-- {
		src := pix[y*w*3 : (y+1)*w*3]
		for i, v := range src {
			binary.LittleEndian.PutUint32(row[i*4:], math.Float32bits(v))
		}
		if _, err := bw.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
