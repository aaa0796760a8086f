// Package crawler implements the opinion-section extraction pipeline and the
// types shared by the browser drivers, session runner and dispatcher.
//
// A Pipeline drives one Session through the states
// Home -> ConsentResolved -> OnOpinionSection -> ArticlesDiscovered ->
// ExtractingDetail* -> Done. Navigation failures are returned to the caller;
// consent, per-block discovery and per-article problems are contained and
// logged so the remaining work can continue.
package crawler
