package device

import "testing"

func TestWorkDimTotal(t *testing.T) {
	cases := []struct {
		dim  WorkDim
		want int
	}{
		{Dim1(7), 7},
		{Dim2(3, 5), 15},
		{Dim3(2, 3, 5), 30},
	}
	for _, c := range cases {
		if got := c.dim.Total(); got != c.want {
			t.Errorf("%v.Total() = %d, want %d", c.dim, got, c.want)
		}
	}
}

func TestCeilDiv(t *testing.T) {
	grid := Dim2(33, 17).CeilDiv(Dim2(16, 16))
	if grid.Get(0) != 3 || grid.Get(1) != 2 {
		t.Fatalf("grid = %v, want [3 2]", grid)
	}

	// Exact division.
	grid = Dim1(256).CeilDiv(Dim1(256))
	if grid.Get(0) != 1 {
		t.Fatalf("grid = %v, want [1]", grid)
	}
}

func TestWorkItemLinear(t *testing.T) {
	global := Dim3(2, 3, 4)
	seen := make(map[int]bool)
	for z := 0; z < 2; z++ {
		for y := 0; y < 3; y++ {
			for x := 0; x < 4; x++ {
				it := WorkItem{id: [3]int{z, y, x}, global: global}
				lin := it.Linear()
				if lin < 0 || lin >= global.Total() {
					t.Fatalf("(%d,%d,%d) linear %d out of range", z, y, x, lin)
				}
				if seen[lin] {
					t.Fatalf("(%d,%d,%d) collides at linear %d", z, y, x, lin)
				}
				seen[lin] = true
			}
		}
	}
}
