package main

import "github.com/2dogsandanerd/Knowledge-Base-Self-Hosting-Kit/internal/cli"

func main() {
	cli.Execute()
}
