package capmap_test

import (
	"fmt"
	"os"

	"kv-capacity/capmap"
)

func Example() {
	dir, _ := os.MkdirTemp("", "capmap-example")
	defer os.RemoveAll(dir)

	m, err := capmap.New[string, int](capmap.WithPieceSize(2), capmap.WithTempDir(dir), capmap.WithExitHooks(nil))
	if err != nil {
		panic(err)
	}
	defer m.Close()

	for i, key := range []string{"A", "B", "C", "D", "E"} {
		if _, _, err := m.Put(key, i); err != nil {
			panic(err)
		}
	}

	r, err := m.NewReader()
	if err != nil {
		panic(err)
	}
	defer r.Close()
	for p, err := range r.Pieces() {
		if err != nil {
			panic(err)
		}
		fmt.Println("piece", p.Seq, "entries", p.Len())
	}
	fmt.Println("size", m.RealSize(), "pending", m.CurrentPieceLen())

	// Output:
	// piece 0 entries 2
	// piece 1 entries 2
	// size 5 pending 1
}
