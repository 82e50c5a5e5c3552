// Flowsim runs event-driven workflow scenarios from the command line.
package main

import "github.com/flowlab/flowsim/flowsim/cmd"

func main() {
	cmd.Execute()
}
