package datastore

import "fmt"

// sequenceNames is a deterministic NameGenerator.
type sequenceNames struct {
	n int
}

func (s *sequenceNames) Unique(stem, ext string) string {
	s.n++
	return fmt.Sprintf("%s-%d%s", stem, s.n, ext)
}

func (s *sequenceNames) Disambiguate(stem, ext string) string {
	return stem + "-dup" + ext
}

func (s *sequenceNames) FileID() string {
	return "file-0000000000000000"
}
