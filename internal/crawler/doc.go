// Package crawler implements the bulk import crawler: a single-tab state
// machine that walks paginated bookmark listings, merges the records each
// page yields, and stops once two consecutive pages add nothing new or the
// page cap is reached.
//
// A run moves through Extracting, Merging, FindingNextPage, Navigating and
// AwaitingPageReady until Done. Every boundary call (endpoint injection,
// extraction, next-page lookup, navigation, readiness polling) goes through
// Retry with a fixed delay. Exhausted retries degrade to an empty result and
// never abort the run; only ErrInvalidTabState at entry is reported to the
// caller as an error.
package crawler
