// Command zoi is the installed binary's entry point; all behavior
// lives in src/cmd.
package main

import "github.com/zoi-pm/zoi/src/cmd"

func main() {
	cmd.Execute()
}
