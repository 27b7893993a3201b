package ranking

// Ranked is one ordered entry. Score and DistanceMeters are set only when the
// ordering computed them.
type Ranked struct {
	ItemID         string
	Score          *float64
	DistanceMeters *float64
}

// Page is an ordered, paged result. Total counts every eligible item.
type Page struct {
	Items []Ranked
	Total int
	Page  int
	Size  int
	Sort  SortField
}

// Slice pages an already ordered list.
func Slice(all []Ranked, p Paging, sort SortField) Page {
	start, end := p.Window(len(all))
	items := make([]Ranked, end-start)
	copy(items, all[start:end])
	return Page{
		Items: items,
		Total: len(all),
		Page:  p.Page(),
		Size:  p.Size(),
		Sort:  sort,
	}
}
