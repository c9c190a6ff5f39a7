package main

import (
	"fmt"
	"os"

	"github.com/crucial707/radar/cmd/cli/posts"
	"github.com/crucial707/radar/cmd/cli/root"
	"github.com/crucial707/radar/cmd/cli/users"
)

func main() {
	rootCmd := root.GetRoot()
	users.InitUsers(rootCmd)
	posts.InitPosts(rootCmd)

	// Execute the root Cobra command
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
