package main

import "github.com/urza/Yap/cmd"

func main() {
	cmd.Execute()
}
