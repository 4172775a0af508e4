// Package crawler defines the catalog crawl domain: listing queries, detail
// URLs, fetched documents, product records, the shared error taxonomy, and
// the small interfaces the fetch, discovery, and dispatch subsystems plug into.
package crawler
