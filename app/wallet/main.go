// The wallet is a simple CLI for key custody and building signed value
// transfers against a running node.
package main

import "github.com/coinforge/node/app/wallet/cmd"

func main() {
	cmd.Execute()
}
