// Package nodemux multiplexes one native observer across many listeners.
//
// Platform observers often take a single callback per handle and can only
// be reset as a whole. nodemux owns one such handle, keeps a table of
// which listeners care about which target, and fans each reported change
// out to the listeners registered for its target.
//
// Key features:
//   - One native handle for any number of targets and listeners
//   - Deduplicated listener registration per target
//   - First registration chooses the observe options for a target
//   - Automatic re-registration of remaining targets after a removal
//   - Graceful degrade when the capability is unavailable
//
// Example:
//
//	mux := nodemux.New(fs.Opener())
//	defer mux.Close()
//
//	l := nodemux.NewListener(func(r nodemux.Record[string]) {
//	    fmt.Println(r.Kind, r.Name)
//	})
//	mux.ObserveWith("/etc/app", l, nodemux.ObserveOptions{ChildList: true, Subtree: true})
package nodemux

import "github.com/yacchi/nodemux/native"

// ObserveOptions is an alias for native.Options.
type ObserveOptions = native.Options

// Record is an alias for native.Record.
type Record[T comparable] = native.Record[T]

// Record kinds re-exported from the native package.
const (
	KindChildList     = native.KindChildList
	KindAttributes    = native.KindAttributes
	KindCharacterData = native.KindCharacterData
)

// DefaultOptions returns the options used by Observe: structural changes only.
func DefaultOptions() ObserveOptions {
	return ObserveOptions{ChildList: true}
}
