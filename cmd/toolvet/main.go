package main

import "toolvet/cmd/handlers"

func main() {
	handlers.Execute()
}
