package main

import "pricetracker/cmd"

func main() {
	cmd.Execute()
}
