package index

import (
	apperrors "github.com/Adithya-Monish-Kumar-K/shardidx/pkg/errors"
)

// MergeLists merges two DocID-sorted lists in linear time. When both lists
// carry the same DocID the posting from a wins.
func MergeLists(a, b PostingList) PostingList {
	out, _ := mergeLists(a, b, false)
	return out
}

// MergeListsStrict is MergeLists but fails on a DocID present in both lists.
func MergeListsStrict(a, b PostingList) (PostingList, error) {
	return mergeLists(a, b, true)
}

func mergeLists(a, b PostingList, strict bool) (PostingList, error) {
	if len(a) == 0 {
		return b, nil
	}
	if len(b) == 0 {
		return a, nil
	}
	out := make(PostingList, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].DocID < b[j].DocID:
			out = append(out, a[i])
			i++
		case a[i].DocID > b[j].DocID:
			out = append(out, b[j])
			j++
		default:
			if strict {
				return nil, apperrors.Newf(apperrors.ErrDuplicateDoc, "index.merge",
					"doc %d present in two lists", a[i].DocID)
			}
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out, nil
}

// MergeAll folds lists pairwise, left to right.
func MergeAll(lists []PostingList) (PostingList, error) {
	var merged PostingList
	for _, l := range lists {
		var err error
		merged, err = MergeListsStrict(merged, l)
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}
