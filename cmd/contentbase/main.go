// Command contentbase operates a content store: it ingests scraped books,
// inspects and rolls back document history, exports documents and repairs
// locks and indexes.
package main

func main() {
	Execute()
}
