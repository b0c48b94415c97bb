// klingnet-ledger runs and inspects a proof-of-work balance ledger.
//
// Usage:
//
//	klingnet-ledger init                     Create config and genesis
//	klingnet-ledger mine [--tx file]         Mine blocks
//	klingnet-ledger balance <account>        Show an account balance
//	klingnet-ledger block <hash|length>      Show a block
//	klingnet-ledger --help                   Show help
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
