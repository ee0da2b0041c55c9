package output_test

import (
	"fmt"
	"os"

	"github.com/pavanmanishd/bufarena"
	"github.com/pavanmanishd/bufarena/output"
)

// Example pushes a chain through a Chain into a Writer over stdout.
func Example() {
	a, err := bufarena.NewArena(4096)
	if err != nil {
		panic(err)
	}
	defer a.Destroy()

	w := output.NewWriter(a, &output.ConnSender{W: os.Stdout})
	c, err := output.New(a, w.Filter, output.Options{})
	if err != nil {
		panic(err)
	}

	in, _ := a.CreateChainOfBufs(bufarena.Bufs{Num: 2, Size: 16})
	a.Buf(in).Write([]byte("hello, "))
	a.Buf(a.Next(in)).Write([]byte("world\n"))

	if err := c.Output(in); err != nil {
		panic(err)
	}
	fmt.Println("pending:", c.Pending() || w.Pending())

	// Output:
	// hello, world
	// pending: false
}
