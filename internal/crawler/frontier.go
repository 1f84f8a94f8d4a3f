package crawler

import (
	"slices"
	"sort"
)

type task struct {
	url   string
	mode  FetchMode
	depth int
	kind  LinkKind
}

type record struct {
	VisitRecord
	sources map[string]struct{}
	anchors map[string]struct{}
}

func (r *record) addSource(source, anchor string) {
	if source != "" {
		r.sources[source] = struct{}{}
	}
	if anchor != "" {
		r.anchors[anchor] = struct{}{}
	}
}

// frontier holds every VisitRecord of a run and the FIFO of pending targets.
// It is owned by the coordinator goroutine and is not safe for concurrent use.
type frontier struct {
	scope         *Scope
	checkExternal bool
	stats         *Stats

	records   map[string]*record
	queue     []string
	fullPages int
}

func newFrontier(scope *Scope, checkExternal bool, stats *Stats) *frontier {
	return &frontier{
		scope:         scope,
		checkExternal: checkExternal,
		stats:         stats,
		records:       make(map[string]*record),
	}
}

// seed queues an entry point regardless of include/exclude patterns.
func (f *frontier) seed(target string, mode FetchMode) bool {
	if _, exists := f.records[target]; exists {
		return false
	}
	kind := KindInternalPage
	if mode == ModeSitemap {
		kind = KindSitemap
	}
	if mode == ModeFullPage {
		f.fullPages++
	}
	f.add(target, mode, kind, 0)
	return true
}

// offer records link and queues its target when it has not been seen before.
// The crawl-or-check decision is made here, once.
func (f *frontier) offer(link Link, depth int) bool {
	if link.Err != nil {
		if r, exists := f.records[link.Target]; exists {
			r.addSource(link.Source, link.AnchorText)
			return false
		}
		r := f.newRecord(link.Target, "", link.Kind, depth)
		r.Status = Status{Kind: StatusSkipped, SkipReason: SkipMalformed, Message: link.Err.Error()}
		r.addSource(link.Source, link.AnchorText)
		f.stats.SkippedMalformed++
		return false
	}

	switch link.Kind {
	case KindInternalPage:
		f.stats.TotalInternalLinks++
	case KindInternalAsset:
		f.stats.TotalAssetLinks++
	case KindExternal:
		f.stats.TotalExternalLinks++
		if !f.checkExternal {
			return false
		}
	}

	if r, exists := f.records[link.Target]; exists {
		r.addSource(link.Source, link.AnchorText)
		f.maybeUpgrade(r, link, depth)
		return false
	}

	if f.scope.Ignored(link.Target) {
		r := f.newRecord(link.Target, "", link.Kind, depth)
		r.Status = Status{Kind: StatusSkipped, SkipReason: SkipIgnored, Message: "matches ignore pattern"}
		r.addSource(link.Source, link.AnchorText)
		f.stats.SkippedIgnored++
		return false
	}

	mode := f.modeFor(link, depth, true)
	r := f.add(link.Target, mode, link.Kind, depth)
	r.addSource(link.Source, link.AnchorText)
	return true
}

func (f *frontier) modeFor(link Link, depth int, count bool) FetchMode {
	if link.Kind == KindSitemap {
		return ModeSitemap
	}
	if link.Kind != KindInternalPage {
		return ModeExistenceCheck
	}
	switch f.scope.Crawlable(link.Target, depth) {
	case crawlTooDeep:
		if count {
			f.stats.SkippedByDepth++
		}
		return ModeExistenceCheck
	case crawlOutOfScope:
		if count {
			f.stats.SkippedByScope++
		}
		return ModeExistenceCheck
	}
	if f.scope.MaxPages > 0 && f.fullPages >= f.scope.MaxPages {
		if count {
			f.stats.SkippedByLimit++
		}
		return ModeExistenceCheck
	}
	f.fullPages++
	return ModeFullPage
}

// maybeUpgrade turns a still-pending existence check into a crawl when the
// target is reached again through a path that qualifies it.
func (f *frontier) maybeUpgrade(r *record, link Link, depth int) {
	if r.Status.Kind != StatusPending || r.Mode != ModeExistenceCheck || link.Kind != KindInternalPage {
		return
	}
	if f.modeFor(link, depth, false) == ModeFullPage {
		r.Mode = ModeFullPage
		r.Depth = depth
	}
}

func (f *frontier) newRecord(target string, mode FetchMode, kind LinkKind, depth int) *record {
	r := &record{
		VisitRecord: VisitRecord{URL: target, Mode: mode, Kind: kind, Depth: depth},
		sources:     make(map[string]struct{}),
		anchors:     make(map[string]struct{}),
	}
	f.records[target] = r
	return r
}

func (f *frontier) add(target string, mode FetchMode, kind LinkKind, depth int) *record {
	r := f.newRecord(target, mode, kind, depth)
	r.Status = Status{Kind: StatusPending}
	f.queue = append(f.queue, target)
	return r
}

// take pops the next pending target. It returns false when the queue is empty.
func (f *frontier) take() (task, bool) {
	for len(f.queue) > 0 {
		target := f.queue[0]
		f.queue[0] = ""
		f.queue = f.queue[1:]
		r := f.records[target]
		if r == nil || r.Status.Kind != StatusPending {
			continue
		}
		return task{url: target, mode: r.Mode, depth: r.Depth, kind: r.Kind}, true
	}
	return task{}, false
}

func (f *frontier) get(target string) *record {
	return f.records[target]
}

// snapshot copies every record, sorted by URL.
func (f *frontier) snapshot() []VisitRecord {
	out := make([]VisitRecord, 0, len(f.records))
	for _, r := range f.records {
		v := r.VisitRecord
		v.DiscoveredFrom = sortedKeys(r.sources)
		v.AnchorTexts = sortedKeys(r.anchors)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
