// Command restcall sends one REST call through a restkit engine and prints
// the response body.
//
// Usage:
//
//	restcall [flags] METHOD URL
//	restcall get https://api.example.com/users/42 --bearer "$TOKEN"
//	restcall post https://api.example.com/users -d '{"name":"ada"}' --engine multiplexed
package main

import (
	"context"
	"os"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
