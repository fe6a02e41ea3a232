package main

import "chatrelay/internal/ctl"

var version = "dev"

func main() {
	ctl.Execute(version)
}
