package handlers

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/billtracker/internal/model"
	"github.com/jjenkins/billtracker/internal/store"
)

// BillReader is the read side of the bill store
type BillReader interface {
	ListBills(ctx context.Context, f store.BillFilter) ([]model.Bill, int, error)
	GetBill(ctx context.Context, id string) (*model.Bill, error)
	GetActions(ctx context.Context, billID string) ([]model.Action, error)
	GetTitles(ctx context.Context, billID string) ([]model.Title, error)
	GetLatestSummary(ctx context.Context, billID string) (*model.Summary, error)
	GetPolicyArea(ctx context.Context, billID string) (string, error)
	LatestCongress(ctx context.Context) (int, error)
}

type sponsorJSON struct {
	Name  string `json:"name,omitempty"`
	Party string `json:"party,omitempty"`
	State string `json:"state,omitempty"`
}

type progressJSON struct {
	Stage       int    `json:"stage"`
	Description string `json:"description"`
	Percent     int    `json:"percent"`
}

type latestActionJSON struct {
	Date string `json:"date,omitempty"`
	Text string `json:"text,omitempty"`
}

type billJSON struct {
	ID              string           `json:"id"`
	Congress        int              `json:"congress"`
	BillType        string           `json:"bill_type"`
	BillNumber      int              `json:"bill_number"`
	Label           string           `json:"label"`
	Title           string           `json:"title"`
	IntroducedDate  string           `json:"introduced_date,omitempty"`
	OriginChamber   string           `json:"origin_chamber,omitempty"`
	Sponsor         sponsorJSON      `json:"sponsor"`
	Progress        progressJSON     `json:"progress"`
	LatestAction    latestActionJSON `json:"latest_action"`
	TextURL         string           `json:"text_url,omitempty"`
	PDFURL          string           `json:"pdf_url,omitempty"`
	UpdateDate      string           `json:"update_date,omitempty"`
	SyncedEndpoints []string         `json:"synced_endpoints"`
}

type actionJSON struct {
	Seq        int    `json:"seq"`
	Date       string `json:"date,omitempty"`
	Text       string `json:"text"`
	Type       string `json:"type,omitempty"`
	Code       string `json:"code,omitempty"`
	SourceName string `json:"source,omitempty"`
}

type titleJSON struct {
	Title       string `json:"title"`
	Type        string `json:"type"`
	Chamber     string `json:"chamber,omitempty"`
	TextVersion string `json:"text_version,omitempty"`
}

type summaryJSON struct {
	UpdateDate  string `json:"update_date"`
	ActionDate  string `json:"action_date,omitempty"`
	ActionDesc  string `json:"action_desc,omitempty"`
	VersionCode string `json:"version_code,omitempty"`
	Text        string `json:"text"`
}

type billDetailJSON struct {
	billJSON
	PolicyArea string       `json:"policy_area,omitempty"`
	Summary    *summaryJSON `json:"summary"`
	Actions    []actionJSON `json:"actions"`
	Titles     []titleJSON  `json:"titles"`
}

type billListJSON struct {
	Bills  []billJSON `json:"bills"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// BillsHandler lists bills, optionally filtered by congress, type and stage
func BillsHandler(bills BillReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		filter := store.BillFilter{
			Congress: c.QueryInt("congress", 0),
			BillType: strings.ToLower(c.Query("type")),
			Stage:    model.Stage(c.QueryInt("stage", 0)),
			Limit:    c.QueryInt("limit", 50),
			Offset:   c.QueryInt("offset", 0),
		}
		if filter.BillType != "" {
			if _, ok := model.LookupBillType(filter.BillType); !ok {
				return jsonError(c, fiber.StatusBadRequest, "Invalid bill type")
			}
		}
		if filter.Stage != 0 && !filter.Stage.Valid() {
			return jsonError(c, fiber.StatusBadRequest, "Invalid stage")
		}
		if filter.Limit < 1 || filter.Limit > 250 || filter.Offset < 0 {
			return jsonError(c, fiber.StatusBadRequest, "limit must be 1-250 and offset must not be negative")
		}

		list, total, err := bills.ListBills(ctx, filter)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error loading bills")
		}

		resp := billListJSON{
			Bills:  make([]billJSON, 0, len(list)),
			Total:  total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		}
		for i := range list {
			resp.Bills = append(resp.Bills, toBillJSON(&list[i]))
		}
		return c.JSON(resp)
	}
}

// BillDetailHandler returns one bill with its actions, titles, latest summary and policy area
func BillDetailHandler(bills BillReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		id := strings.ToLower(c.Params("id"))
		if _, _, _, err := model.ParseBillID(id); err != nil {
			return jsonError(c, fiber.StatusBadRequest, "Invalid bill id")
		}

		bill, err := bills.GetBill(ctx, id)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error loading bill")
		}
		if bill == nil {
			return jsonError(c, fiber.StatusNotFound, "Bill not found")
		}

		actions, err := bills.GetActions(ctx, id)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error loading actions")
		}
		titles, err := bills.GetTitles(ctx, id)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error loading titles")
		}
		summary, err := bills.GetLatestSummary(ctx, id)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error loading summary")
		}
		policyArea, err := bills.GetPolicyArea(ctx, id)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error loading policy area")
		}

		resp := billDetailJSON{
			billJSON:   toBillJSON(bill),
			PolicyArea: policyArea,
			Actions:    make([]actionJSON, 0, len(actions)),
			Titles:     make([]titleJSON, 0, len(titles)),
		}
		for _, a := range actions {
			resp.Actions = append(resp.Actions, actionJSON{
				Seq:        a.Seq,
				Date:       formatDate(a.ActionDate),
				Text:       a.Text,
				Type:       a.ActionType,
				Code:       a.ActionCode,
				SourceName: a.SourceName,
			})
		}
		for _, t := range titles {
			resp.Titles = append(resp.Titles, titleJSON{
				Title:       t.Title,
				Type:        t.TitleType,
				Chamber:     t.ChamberName,
				TextVersion: t.TextVersionName,
			})
		}
		if summary != nil {
			resp.Summary = &summaryJSON{
				UpdateDate:  summary.UpdateDate.UTC().Format(time.RFC3339),
				ActionDate:  formatDate(summary.ActionDate),
				ActionDesc:  summary.ActionDesc,
				VersionCode: summary.VersionCode,
				Text:        summary.Text,
			}
		}

		return c.JSON(resp)
	}
}

// LatestCongressHandler reports the newest congress with stored bills
func LatestCongressHandler(bills BillReader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		congress, err := bills.LatestCongress(c.UserContext())
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error loading congress")
		}
		if congress == 0 {
			return jsonError(c, fiber.StatusNotFound, "No bills stored yet")
		}
		return c.JSON(fiber.Map{"congress": congress})
	}
}

func toBillJSON(b *model.Bill) billJSON {
	title := b.CleanTitle
	if title == "" {
		title = b.Title
	}
	out := billJSON{
		ID:             b.ID,
		Congress:       b.Congress,
		BillType:       b.BillType,
		BillNumber:     b.BillNumber,
		Label:          b.TypeLabel + " " + strconv.Itoa(b.BillNumber),
		Title:          title,
		IntroducedDate: formatDate(b.IntroducedDate),
		OriginChamber:  b.OriginChamber,
		Sponsor: sponsorJSON{
			Name:  b.SponsorName,
			Party: b.SponsorParty,
			State: b.SponsorState,
		},
		Progress: progressJSON{
			Stage:       int(b.ProgressStage),
			Description: b.ProgressDescription,
			Percent:     b.ProgressPercent,
		},
		LatestAction: latestActionJSON{
			Date: formatDate(b.LatestActionDate),
			Text: b.LatestActionText,
		},
		TextURL:         b.TextURL,
		PDFURL:          b.PDFURL,
		SyncedEndpoints: b.SyncedEndpoints.Names(),
	}
	if b.UpdateDate.Valid {
		out.UpdateDate = b.UpdateDate.Time.UTC().Format(time.RFC3339)
	}
	return out
}

func formatDate(t sql.NullTime) string {
	if !t.Valid {
		return ""
	}
	return t.Time.Format("2006-01-02")
}

func jsonError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
