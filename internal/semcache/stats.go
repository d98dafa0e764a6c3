package semcache

import "sort"

// TagCount is one tag and how many resident entries carry it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries          int        `json:"entries"`
	Capacity         int        `json:"capacity"`
	Lookups          int64      `json:"lookups"`
	Hits             int64      `json:"hits"`
	HitRate          float64    `json:"hit_rate"`
	AvgHitSimilarity float64    `json:"avg_hit_similarity"`
	TopTags          []TagCount `json:"top_tags,omitempty"`
	MemoryBytes      int64      `json:"memory_bytes"`
}

// Stats reports hit rate, the running average similarity of winning
// hits, the most frequent tags and an approximate resident size.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:  len(c.entries),
		Capacity: c.cfg.Capacity,
		Lookups:  c.lookups,
		Hits:     c.hits,
	}
	if c.lookups > 0 {
		s.HitRate = float64(c.hits) / float64(c.lookups)
	}
	if c.hits > 0 {
		s.AvgHitSimilarity = c.simSum / float64(c.hits)
	}

	counts := make(map[string]int)
	for _, e := range c.entries {
		s.MemoryBytes += entryFootprint(e)
		for _, tag := range e.Tags {
			counts[tag]++
		}
	}
	for tag, n := range counts {
		s.TopTags = append(s.TopTags, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(s.TopTags, func(i, j int) bool {
		if s.TopTags[i].Count != s.TopTags[j].Count {
			return s.TopTags[i].Count > s.TopTags[j].Count
		}
		return s.TopTags[i].Tag < s.TopTags[j].Tag
	})
	if len(s.TopTags) > topTagLimit {
		s.TopTags = s.TopTags[:topTagLimit]
	}
	return s
}

// entryFootprint approximates an entry's resident size from its
// strings, payload and embedding, plus fixed struct overhead.
func entryFootprint(e *Entry) int64 {
	n := len(e.ID) + len(e.Query) + len(e.Payload) + len(e.Model) + 4*len(e.QueryEmbedding)
	for _, t := range e.Tags {
		n += len(t)
	}
	return int64(n + 128)
}
