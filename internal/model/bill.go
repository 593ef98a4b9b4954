package model

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bill represents the current state of a single bill
type Bill struct {
	ID                  string // composite key: number + type + congress, e.g. "1234hr119"
	Congress            int
	BillType            string
	BillNumber          int
	TypeLabel           string
	Title               string
	CleanTitle          string
	IntroducedDate      sql.NullTime
	OriginChamber       string
	SponsorName         string
	SponsorParty        string
	SponsorState        string
	ProgressStage       Stage
	ProgressDescription string
	ProgressPercent     int
	LatestActionDate    sql.NullTime
	LatestActionText    string
	TextURL             string
	PDFURL              string
	UpdateDate          sql.NullTime // last update reported by the source API
	SyncedEndpoints     Endpoint
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Action is a single entry in a bill's legislative history
type Action struct {
	ID         int64
	BillID     string
	Seq        int
	ActionDate sql.NullTime
	Text       string
	ActionType string
	ActionCode string
	SourceName string
	SourceCode string
}

// Summary is one CRS summary version of a bill, keyed by (BillID, UpdateDate)
type Summary struct {
	ID          int64
	BillID      string
	UpdateDate  time.Time
	ActionDate  sql.NullTime
	ActionDesc  string
	VersionCode string
	Text        string
}

// PolicyArea is the single subject label assigned to a bill
type PolicyArea struct {
	BillID    string
	Name      string
	UpdatedAt time.Time
}

// BillRecord is a fully transformed bill with its child collections, ready to be stored
type BillRecord struct {
	Bill       Bill
	Actions    []Action
	Titles     []Title
	Summary    *Summary
	PolicyArea string

	// Endpoints lists the sub-resources that were fetched for this record.
	// Child collections for endpoints not in this set are left untouched.
	Endpoints Endpoint
}

// LatestAction returns the action status derivation should treat as latest
// when the history is empty. When Actions is populated it returns nil and
// the last history entry is used instead.
func (r *BillRecord) LatestAction() *Action {
	if len(r.Actions) > 0 || r.Bill.LatestActionText == "" {
		return nil
	}
	return &Action{
		BillID:     r.Bill.ID,
		ActionDate: r.Bill.LatestActionDate,
		Text:       r.Bill.LatestActionText,
	}
}

// BillID builds the composite key used for a bill and all of its children
func BillID(congress int, billType string, number int) string {
	return fmt.Sprintf("%d%s%d", number, strings.ToLower(billType), congress)
}

// ParseBillID splits a composite key such as "1234hr119" into its parts
func ParseBillID(id string) (congress int, billType string, number int, err error) {
	id = strings.ToLower(strings.TrimSpace(id))

	i := 0
	for i < len(id) && id[i] >= '0' && id[i] <= '9' {
		i++
	}
	j := i
	for j < len(id) && id[j] >= 'a' && id[j] <= 'z' {
		j++
	}
	if i == 0 || j == i || j == len(id) {
		return 0, "", 0, fmt.Errorf("invalid bill id %q", id)
	}

	number, err = strconv.Atoi(id[:i])
	if err != nil {
		return 0, "", 0, fmt.Errorf("invalid bill number in %q: %w", id, err)
	}
	congress, err = strconv.Atoi(id[j:])
	if err != nil {
		return 0, "", 0, fmt.Errorf("invalid congress in %q: %w", id, err)
	}
	billType = id[i:j]
	if _, ok := LookupBillType(billType); !ok {
		return 0, "", 0, fmt.Errorf("unknown bill type %q in %q", billType, id)
	}

	return congress, billType, number, nil
}
