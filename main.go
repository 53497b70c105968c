package main

import "common-grounds-backend/cmd"

func main() {
	cmd.Run()
}
