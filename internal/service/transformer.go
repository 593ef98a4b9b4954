package service

import (
	"database/sql"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/jjenkins/billtracker/internal/model"
)

var (
	// blockTag matches tags that separate words when rendered
	blockTag = regexp.MustCompile(`(?i)<\s*(/?\s*(p|div|li|ul|ol|h[1-6]|tr|td|th|blockquote)|br\s*/?)[^>]*>`)

	// sponsorAnnotation matches suffixes like "[R-TX-5]" or "[D-CA]"
	sponsorAnnotation = regexp.MustCompile(`\s*\[[^\]]*\]`)

	titlePrefix = buildTitlePrefix()
)

func buildTitlePrefix() *regexp.Regexp {
	labels := make([]string, 0, len(model.BillTypes))
	for _, bt := range model.BillTypes {
		labels = append(labels, regexp.QuoteMeta(bt.Label))
	}
	// Longest first so "H.J.Res." wins over "H."-style prefixes.
	sort.Slice(labels, func(i, j int) bool { return len(labels[i]) > len(labels[j]) })
	return regexp.MustCompile(`^(?i)(` + strings.Join(labels, "|") + `)\s*\d+\s*[-:–—]?\s*`)
}

// Transformer maps raw API payloads into normalized bill records
type Transformer struct {
	policy *bluemonday.Policy
}

// NewTransformer creates a new Transformer
func NewTransformer() *Transformer {
	return &Transformer{policy: bluemonday.StrictPolicy()}
}

// Transform builds a BillRecord from one bill's fetched payloads. Missing
// sub-resources produce empty collections. Status fields are left for the
// caller to derive.
func (t *Transformer) Transform(raw *RawBill) (*model.BillRecord, error) {
	if raw == nil || raw.Detail == nil {
		return nil, &TransformError{Reason: "missing bill detail"}
	}
	d := raw.Detail

	billType := strings.ToLower(strings.TrimSpace(d.Type))
	bt, ok := model.LookupBillType(billType)
	if !ok {
		return nil, &TransformError{Reason: "unknown bill type " + strconv.Quote(d.Type)}
	}
	number, err := strconv.Atoi(strings.TrimSpace(d.Number.String()))
	if err != nil || number <= 0 {
		return nil, &TransformError{Reason: "invalid bill number " + strconv.Quote(d.Number.String())}
	}
	if d.Congress <= 0 {
		return nil, &TransformError{Reason: "missing congress"}
	}

	id := model.BillID(d.Congress, billType, number)

	bill := model.Bill{
		ID:             id,
		Congress:       d.Congress,
		BillType:       billType,
		BillNumber:     number,
		TypeLabel:      bt.Label,
		Title:          strings.TrimSpace(d.Title),
		CleanTitle:     CleanTitle(d.Title),
		IntroducedDate: parseDate(d.IntroducedDate),
		OriginChamber:  originChamber(d, bt),
		UpdateDate:     latestDate(d.UpdateDate, d.UpdateDateIncludingText),
	}

	if len(d.Sponsors) > 0 {
		s := d.Sponsors[0]
		bill.SponsorName = NormalizeSponsorName(s.FullName)
		if bill.SponsorName == "" {
			bill.SponsorName = strings.TrimSpace(s.FirstName + " " + s.LastName)
		}
		bill.SponsorParty = s.Party
		bill.SponsorState = s.State
	}

	if d.LatestAction != nil {
		bill.LatestActionDate = parseDate(d.LatestAction.ActionDate)
		bill.LatestActionText = strings.TrimSpace(d.LatestAction.Text)
	}

	fetched := raw.Fetched | model.EndpointDetail

	items := d.Actions.Items
	if fetched.Has(model.EndpointActions) {
		items = raw.Actions
	}

	rec := &model.BillRecord{
		Bill:      bill,
		Actions:   t.actions(id, items),
		Titles:    t.titles(id, raw.Titles),
		Summary:   t.latestSummary(id, raw.Summaries),
		Endpoints: fetched,
	}

	if d.PolicyArea != nil {
		rec.PolicyArea = strings.TrimSpace(d.PolicyArea.Name)
	}

	if pdf, txt := textURLs(raw.TextVersions); pdf != "" || txt != "" {
		rec.Bill.PDFURL = pdf
		rec.Bill.TextURL = txt
	}

	// The detail payload's latest action is sometimes newer than the
	// paginated history; fall back to the history when it is absent.
	if rec.Bill.LatestActionText == "" && len(rec.Actions) > 0 {
		last := rec.Actions[len(rec.Actions)-1]
		rec.Bill.LatestActionDate = last.ActionDate
		rec.Bill.LatestActionText = last.Text
	}

	return rec, nil
}

// CleanHTML strips markup from summary text and decodes entities
func (t *Transformer) CleanHTML(s string) string {
	if s == "" {
		return ""
	}
	s = blockTag.ReplaceAllString(s, " $0 ")
	s = t.policy.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeSponsorName removes bracketed annotations from a sponsor's display name
func NormalizeSponsorName(name string) string {
	name = sponsorAnnotation.ReplaceAllString(name, "")
	return strings.Join(strings.Fields(name), " ")
}

// CleanTitle strips a leading "H.R. 1234 - " style prefix from a title
func CleanTitle(title string) string {
	return strings.TrimSpace(titlePrefix.ReplaceAllString(strings.TrimSpace(title), ""))
}

func originChamber(d *BillDetail, bt model.BillType) string {
	switch strings.ToLower(d.OriginChamber) {
	case "house":
		return model.ChamberHouse
	case "senate":
		return model.ChamberSenate
	}
	switch strings.ToUpper(d.OriginChamberCode) {
	case "H":
		return model.ChamberHouse
	case "S":
		return model.ChamberSenate
	}
	return bt.Chamber
}

// actions converts raw actions into chronological order. The API usually
// lists newest first, so a descending list is reversed before the stable
// sort to keep same-day entries in the order they happened.
func (t *Transformer) actions(billID string, items []ActionItem) []model.Action {
	if len(items) == 0 {
		return nil
	}

	type timed struct {
		at     time.Time
		action model.Action
	}
	out := make([]timed, 0, len(items))
	for _, it := range items {
		a := model.Action{
			BillID:     billID,
			ActionDate: parseDate(it.ActionDate),
			Text:       strings.TrimSpace(it.Text),
			ActionType: strings.TrimSpace(it.Type),
			ActionCode: it.ActionCode.String(),
		}
		if it.SourceSystem != nil {
			a.SourceName = it.SourceSystem.Name
			a.SourceCode = it.SourceSystem.Code.String()
		}
		at := a.ActionDate.Time
		if it.ActionTime != "" && a.ActionDate.Valid {
			if tod, err := time.Parse("15:04:05", it.ActionTime); err == nil {
				at = at.Add(time.Duration(tod.Hour())*time.Hour +
					time.Duration(tod.Minute())*time.Minute +
					time.Duration(tod.Second())*time.Second)
			}
		}
		out = append(out, timed{at: at, action: a})
	}

	if out[0].at.After(out[len(out)-1].at) {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })

	actions := make([]model.Action, len(out))
	for i, o := range out {
		o.action.Seq = i
		actions[i] = o.action
	}
	return actions
}

func (t *Transformer) titles(billID string, items []TitleItem) []model.Title {
	if len(items) == 0 {
		return nil
	}
	titles := make([]model.Title, 0, len(items))
	for i, it := range items {
		titles = append(titles, model.Title{
			BillID:          billID,
			Seq:             i,
			Title:           strings.TrimSpace(it.Title),
			TitleType:       it.TitleType,
			TitleTypeCode:   it.TitleTypeCode.String(),
			ChamberCode:     it.ChamberCode,
			ChamberName:     it.ChamberName,
			TextVersionCode: it.BillTextVersionCode,
			TextVersionName: it.BillTextVersionName,
		})
	}
	return titles
}

// latestSummary picks the single summary with the newest update date
func (t *Transformer) latestSummary(billID string, items []SummaryItem) *model.Summary {
	var (
		best   *SummaryItem
		bestAt time.Time
	)
	for i := range items {
		at := parseDate(items[i].UpdateDate)
		if !at.Valid {
			continue
		}
		if best == nil || at.Time.After(bestAt) {
			best = &items[i]
			bestAt = at.Time
		}
	}
	if best == nil {
		return nil
	}

	return &model.Summary{
		BillID:      billID,
		UpdateDate:  bestAt,
		ActionDate:  parseDate(best.ActionDate),
		ActionDesc:  best.ActionDesc,
		VersionCode: best.VersionCode,
		Text:        t.CleanHTML(best.Text),
	}
}

// textURLs returns the PDF and formatted-text links of the newest text version
func textURLs(versions []TextVersionItem) (pdf, txt string) {
	var (
		newest   *TextVersionItem
		newestAt time.Time
	)
	for i := range versions {
		at := parseDate(versions[i].Date)
		if newest == nil || (at.Valid && at.Time.After(newestAt)) {
			newest = &versions[i]
			newestAt = at.Time
		}
	}
	if newest == nil {
		return "", ""
	}
	for _, f := range newest.Formats {
		switch strings.ToLower(f.Type) {
		case "pdf":
			pdf = f.URL
		case "formatted text":
			txt = f.URL
		}
	}
	return pdf, txt
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseDate accepts the date and timestamp formats the API emits
func parseDate(s string) sql.NullTime {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullTime{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return sql.NullTime{Time: t.UTC(), Valid: true}
		}
	}
	return sql.NullTime{}
}

func latestDate(values ...string) sql.NullTime {
	var best sql.NullTime
	for _, v := range values {
		t := parseDate(v)
		if t.Valid && (!best.Valid || t.Time.After(best.Time)) {
			best = t
		}
	}
	return best
}
