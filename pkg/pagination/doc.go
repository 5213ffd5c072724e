// Package pagination drives sliced scroll extraction.
//
// The store splits an index into N disjoint slices; each slice is scrolled
// independently with its own cursor. A Worker owns one slice and walks it
// page by page:
//
//	Init → Searching → Emitting → (Scrolling → Searching → Emitting)* → Done
//
// with Failed reachable from Searching and Emitting. An empty page is the
// only way to reach Done. A transport error, a non-2xx status, an
// unparseable body or an output error moves the worker to Failed and it
// stops at once; whatever it already wrote stays written.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(out, newClient, pagination.DefaultConfig())
//	outcomes := fetcher.FetchAllSlices(ctx, specs)
//
// The fetcher:
//   - starts one goroutine per slice, all at once
//   - joins all of them before returning
//   - returns exactly one Outcome per slice, ordered by slice id
//   - never cancels sibling slices when one fails
package pagination
