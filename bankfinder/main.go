// Command bankfinder groups the addresses of a memory region into DRAM banks
// using pairwise access timings.
package main

import "github.com/sarchlab/bankfinder/bankfinder/cmd"

func main() {
	cmd.Execute()
}
