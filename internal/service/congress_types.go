package service

import (
	"encoding/json"
	"time"

	"github.com/jjenkins/billtracker/internal/model"
)

// flexString accepts either a JSON string or a bare number. The API is not
// consistent about which it sends for codes and bill numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

func (f flexString) String() string { return string(f) }

// ListOptions controls a single page request against a list endpoint
type ListOptions struct {
	Offset       int
	Limit        int
	Sort         string // e.g. "updateDate+desc"
	FromDateTime time.Time
	ToDateTime   time.Time
}

// BillPage is one page of the bill list endpoint
type BillPage struct {
	Bills   []BillListItem
	Offset  int
	Limit   int
	HasMore bool // page was full, so another page likely exists
}

// billListResponse represents the API response for /bill/{congress}/{type}
type billListResponse struct {
	Bills []BillListItem `json:"bills"`
}

// BillListItem is a bill as it appears in a list page
type BillListItem struct {
	Congress                int           `json:"congress"`
	Type                    string        `json:"type"`
	Number                  flexString    `json:"number"`
	Title                   string        `json:"title"`
	OriginChamber           string        `json:"originChamber"`
	OriginChamberCode       string        `json:"originChamberCode"`
	UpdateDate              string        `json:"updateDate"`
	UpdateDateIncludingText string        `json:"updateDateIncludingText"`
	LatestAction            *LatestAction `json:"latestAction"`
	URL                     string        `json:"url"`
}

// LatestAction is the abbreviated action embedded in list and detail payloads
type LatestAction struct {
	ActionDate string `json:"actionDate"`
	ActionTime string `json:"actionTime"`
	Text       string `json:"text"`
}

// billDetailResponse represents the API response for /bill/{congress}/{type}/{number}
type billDetailResponse struct {
	Bill BillDetail `json:"bill"`
}

// ResourceRef points at a sub-resource and advertises its size
type ResourceRef struct {
	Count int    `json:"count"`
	URL   string `json:"url"`
}

// ActionsRef is the detail payload's actions block, which may carry items inline
type ActionsRef struct {
	Count int          `json:"count"`
	URL   string       `json:"url"`
	Items []ActionItem `json:"items"`
}

// BillDetail is the full bill payload
type BillDetail struct {
	Congress                int           `json:"congress"`
	Type                    string        `json:"type"`
	Number                  flexString    `json:"number"`
	Title                   string        `json:"title"`
	IntroducedDate          string        `json:"introducedDate"`
	OriginChamber           string        `json:"originChamber"`
	OriginChamberCode       string        `json:"originChamberCode"`
	UpdateDate              string        `json:"updateDate"`
	UpdateDateIncludingText string        `json:"updateDateIncludingText"`
	Sponsors                []Sponsor     `json:"sponsors"`
	PolicyArea              *PolicyArea   `json:"policyArea"`
	LatestAction            *LatestAction `json:"latestAction"`
	Actions                 ActionsRef    `json:"actions"`
	Summaries               ResourceRef   `json:"summaries"`
	Titles                  ResourceRef   `json:"titles"`
	TextVersions            ResourceRef   `json:"textVersions"`
	Laws                    []Law         `json:"laws"`
}

// Sponsor is a bill sponsor as reported by the API
type Sponsor struct {
	BioguideID string     `json:"bioguideId"`
	FullName   string     `json:"fullName"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	Party      string     `json:"party"`
	State      string     `json:"state"`
	District   flexString `json:"district"`
}

// PolicyArea is the bill's single subject label
type PolicyArea struct {
	Name string `json:"name"`
}

// Law is a public or private law enacted from the bill
type Law struct {
	Number string `json:"number"`
	Type   string `json:"type"`
}

// actionsResponse represents the API response for .../actions
type actionsResponse struct {
	Actions []ActionItem `json:"actions"`
}

// ActionItem is one legislative action
type ActionItem struct {
	ActionDate   string        `json:"actionDate"`
	ActionTime   string        `json:"actionTime"`
	Text         string        `json:"text"`
	Type         string        `json:"type"`
	ActionCode   flexString    `json:"actionCode"`
	SourceSystem *SourceSystem `json:"sourceSystem"`
}

// SourceSystem identifies which chamber or office recorded an action
type SourceSystem struct {
	Code flexString `json:"code"`
	Name string     `json:"name"`
}

// summariesResponse represents the API response for .../summaries
type summariesResponse struct {
	Summaries []SummaryItem `json:"summaries"`
}

// SummaryItem is one CRS summary version
type SummaryItem struct {
	ActionDate  string `json:"actionDate"`
	ActionDesc  string `json:"actionDesc"`
	Text        string `json:"text"`
	UpdateDate  string `json:"updateDate"`
	VersionCode string `json:"versionCode"`
}

// titlesResponse represents the API response for .../titles
type titlesResponse struct {
	Titles []TitleItem `json:"titles"`
}

// TitleItem is one title of a bill
type TitleItem struct {
	Title               string     `json:"title"`
	TitleType           string     `json:"titleType"`
	TitleTypeCode       flexString `json:"titleTypeCode"`
	ChamberCode         string     `json:"chamberCode"`
	ChamberName         string     `json:"chamberName"`
	BillTextVersionCode string     `json:"billTextVersionCode"`
	BillTextVersionName string     `json:"billTextVersionName"`
}

// textVersionsResponse represents the API response for .../text
type textVersionsResponse struct {
	TextVersions []TextVersionItem `json:"textVersions"`
}

// TextVersionItem is one published text version and its download formats
type TextVersionItem struct {
	Date    string       `json:"date"`
	Type    string       `json:"type"`
	Formats []TextFormat `json:"formats"`
}

// TextFormat is a single download link for a text version
type TextFormat struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// currentCongressResponse represents the API response for /congress/current
type currentCongressResponse struct {
	Congress struct {
		Number int `json:"number"`
	} `json:"congress"`
}

// RawBill collects every payload fetched for one bill
type RawBill struct {
	Detail       *BillDetail
	Actions      []ActionItem
	Summaries    []SummaryItem
	Titles       []TitleItem
	TextVersions []TextVersionItem

	// Fetched marks which sub-resources were requested, even if they came back empty.
	Fetched model.Endpoint
}
