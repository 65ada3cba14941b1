package main

import "github.com/MeKo-Tech/photoedit/internal/cmd"

func main() {
	cmd.Execute()
}
