package main

import "github.com/MeKo-Tech/pogocls/cmd/pogocls/cmd"

func main() {
	cmd.Execute()
}
