// cmd/perfharness/main.go
package main

func main() {
	Execute()
}
