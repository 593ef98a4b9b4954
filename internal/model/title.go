package model

// Title represents one of the official or popular titles attached to a bill.
// The full set for a bill is replaced on every sync.
type Title struct {
	ID              int64
	BillID          string
	Seq             int
	Title           string
	TitleType       string
	TitleTypeCode   string
	ChamberCode     string
	ChamberName     string
	TextVersionCode string
	TextVersionName string
}
