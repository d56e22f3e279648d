// Command kvctl inspects and edits kv environments from the shell.
package main

func main() {
	Execute()
}
