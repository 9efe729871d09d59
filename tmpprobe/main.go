package main

import (
	"fmt"

	"loom/internal/blocks"
	"loom/internal/diag"
	"loom/internal/registry"
)

func main() {
	reg := registry.New()
	bag := diag.NewBag(64)
	err := reg.Register(blocks.Module(), diag.BagReporter{Bag: bag})
	fmt.Println("err:", err)
	for _, d := range bag.Items() {
		fmt.Printf("%s: %s\n", d.Code, d.Message)
	}
}
