package classify

import (
	"sort"

	"github.com/hashicorp/go-set"

	"github.com/signalnine/ripedome/internal/result"
)

// TagSet is a deduplicated collection of tags.
type TagSet struct {
	s *set.Set[result.Tag]
}

func NewTagSet() *TagSet {
	return &TagSet{s: set.New[result.Tag](4)}
}

func (t *TagSet) Add(tags ...result.Tag) {
	for _, tag := range tags {
		t.s.Insert(tag)
	}
}

func (t *TagSet) Contains(name string) bool {
	for _, tag := range t.s.Slice() {
		if tag.Name == name {
			return true
		}
	}
	return false
}

func (t *TagSet) Len() int {
	return t.s.Size()
}

// Slice returns the tags ordered by name, so output is stable.
func (t *TagSet) Slice() []result.Tag {
	tags := t.s.Slice()
	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags
}
