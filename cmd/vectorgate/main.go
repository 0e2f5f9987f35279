// Package main is the entry point for vectorgate: it makes sure the Pinecone
// index exists and then serves the HTTP API.
package main

func main() {
	Execute()
}
