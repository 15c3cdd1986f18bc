package fs

import (
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"

	"github.com/yacchi/nodemux/native"
)

// run reads fsnotify events until Close, delivering them in batches.
func (h *Handle) run() {
	for {
		select {
		case <-h.done:
			return
		case ev, ok := <-h.w.Events:
			if !ok {
				return
			}
			batch := h.drain([]fsnotify.Event{ev})
			records := h.translate(batch)
			h.flushErrors()
			if len(records) > 0 {
				h.deliver(records)
			}
		case err, ok := <-h.w.Errors:
			if !ok {
				return
			}
			h.reportError(err)
		}
	}
}

// drain appends already queued events to batch without blocking.
func (h *Handle) drain(batch []fsnotify.Event) []fsnotify.Event {
	for len(batch) < h.batchSize {
		select {
		case ev, ok := <-h.w.Events:
			if !ok {
				return batch
			}
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

// translate maps events to records for the targets that own them.
// It runs without calling out, so deliver is never invoked with h.mu held.
func (h *Handle) translate(events []fsnotify.Event) []native.Record[string] {
	h.mu.Lock()
	defer h.mu.Unlock()

	var records []native.Record[string]
	for _, ev := range events {
		name := filepath.Clean(ev.Name)
		if h.duplicateLocked(name, ev.Op) {
			continue
		}
		if ev.Has(fsnotify.Create) {
			h.followLocked(name)
		}
		for _, target := range h.ownersLocked(name) {
			records = appendRecords(records, target, ev, h.roots[target].opts)
		}
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			// fsnotify drops the watch of a removed or renamed directory.
			delete(h.watched, name)
		}
	}
	return records
}

// duplicateLocked reports whether the event is the second copy of an
// event on a watched directory whose parent is watched too. Both watches
// report attribute changes and renames of that directory.
func (h *Handle) duplicateLocked(name string, op fsnotify.Op) bool {
	key := eventKey{name: name, op: op}
	if h.dups[key] > 0 {
		h.dups[key]--
		if h.dups[key] == 0 {
			delete(h.dups, key)
		}
		return true
	}
	if op&(fsnotify.Chmod|fsnotify.Rename) == 0 {
		return false
	}
	_, self := h.watched[name]
	_, parent := h.watched[filepath.Dir(name)]
	if self && parent {
		h.dups[key]++
	}
	return false
}

// ownersLocked returns the targets an event on name belongs to: owners of
// its parent directory that claim name, and directory owners of name
// itself.
func (h *Handle) ownersLocked(name string) []string {
	var owners []string
	add := func(target string) {
		if !slices.Contains(owners, target) {
			owners = append(owners, target)
		}
	}
	for _, o := range h.watched[filepath.Dir(name)] {
		if o.claims(name) {
			add(o.target)
		}
	}
	for _, o := range h.watched[name] {
		if o.file == "" {
			add(o.target)
		}
	}
	return owners
}

// followLocked watches a directory created below a Subtree target.
func (h *Handle) followLocked(name string) {
	info, err := osStat(name)
	if err != nil || !info.IsDir() {
		return
	}
	for _, o := range h.watched[filepath.Dir(name)] {
		if o.file != "" || !h.roots[o.target].opts.Subtree {
			continue
		}
		if err := h.watchLocked(name, owner{target: o.target}); err != nil {
			h.errorLocked(err)
			continue
		}
		// Entries may have been created before the watch was in place.
		h.watchTreeLocked(name, o.target)
	}
}

func appendRecords(records []native.Record[string], target string, ev fsnotify.Event, opts native.Options) []native.Record[string] {
	op := ev.Op.String()
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if opts.Wants(native.KindChildList) {
			records = append(records, native.Record[string]{Target: target, Kind: native.KindChildList, Name: ev.Name, Op: op})
		}
	}
	if ev.Has(fsnotify.Write) && opts.Wants(native.KindCharacterData) {
		records = append(records, native.Record[string]{Target: target, Kind: native.KindCharacterData, Name: ev.Name, Op: op})
	}
	if ev.Has(fsnotify.Chmod) && opts.WantsAttribute(AttributeMode) {
		records = append(records, native.Record[string]{Target: target, Kind: native.KindAttributes, Name: ev.Name, Attribute: AttributeMode, Op: op})
	}
	return records
}
