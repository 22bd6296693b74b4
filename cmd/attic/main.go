// Command attic archives, restores and purges rows of a relational
// database according to the schema declared in its config file.
package main

import "github.com/mesh-intelligence/attic/internal/cli"

func main() {
	cli.Execute()
}
