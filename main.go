package main

import "catalogue-ingester/cmd"

func main() {
	cmd.Execute()
}
