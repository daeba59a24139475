package index

// DocID identifies a document across every shard of a corpus. IDs start at 1
// and are handed out in processing order by the registry.
type DocID uint64

// Posting records the occurrences of one term in one document.
type Posting struct {
	DocID     DocID `json:"id"`
	Frequency int   `json:"freq"`
	Positions []int `json:"pos"`
}

// PostingList holds every posting for a term, ascending by DocID.
type PostingList []Posting

// TermEntry pairs a term with its posting list.
type TermEntry struct {
	Term     string
	Postings PostingList
}

// Document is the builder's view of an analysed document.
type Document struct {
	ID    DocID
	Terms map[string][]int
}

// DocIDs returns the document ids of the list in order.
func (pl PostingList) DocIDs() []DocID {
	ids := make([]DocID, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}

// Equal reports whether two posting lists hold the same postings.
func (pl PostingList) Equal(other PostingList) bool {
	if len(pl) != len(other) {
		return false
	}
	for i := range pl {
		a, b := pl[i], other[i]
		if a.DocID != b.DocID || a.Frequency != b.Frequency || len(a.Positions) != len(b.Positions) {
			return false
		}
		for j := range a.Positions {
			if a.Positions[j] != b.Positions[j] {
				return false
			}
		}
	}
	return true
}
