package main

import "github.com/jmehdipour/wa-relay/cmd"

func main() {
	cmd.Execute()
}
