package main

import "github.com/goplus/llarmagick/cmd/llarmagick/internal"

func main() {
	internal.Execute()
}
