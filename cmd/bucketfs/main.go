package main

import "github.com/grokify/bucketfs/cmd/bucketfs/cmd"

func main() {
	cmd.Execute()
}
