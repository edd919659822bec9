// Package library turns the identifiers of currently-loaded units into the
// set of absolute files that must be watched and reloaded on change.
//
// Resolution searches a list of base paths in order; the first existing
// candidate wins. Identifiers and base paths containing [ReloadMarker] are
// never considered, so the temporary copies created while reloading the
// entry file cannot feed back into the watch set.
package library
