// Command gt runs the supervising manager and its WebRTC peer-router
// child role. See internal/cmd for the command tree.
package main

import (
	gtcmd "github.com/gotunnel/gt/internal/cmd"
)

func main() {
	gtcmd.Main()
}
