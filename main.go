// The main package for the newsbot executable.
package main

import "github.com/JakeFAU/reddit-newsbot/cmd"

func main() {
	cmd.Execute()
}
