package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/billtracker/internal/model"
)

func act(actionType, text, source string) model.Action {
	return model.Action{ActionType: actionType, Text: text, SourceName: source}
}

var (
	introduced   = act("IntroReferral", "Introduced in House", "Library of Congress")
	referred     = act("IntroReferral", "Referred to the House Committee on Ways and Means.", "House floor actions")
	reported     = act("Committee", "Reported (Amended) by the Committee on Ways and Means.", "House committee actions")
	housePassage = act("Floor", "On passage Passed by recorded vote: 220 - 208 (Roll no. 101).", "House floor actions")
	reconsider   = act("Floor", "Motion to reconsider laid on the table Agreed to without objection.", "House floor actions")
	received     = act("Floor", "Received in the Senate.", "Senate")
	senatePass   = act("Floor", "Passed Senate without amendment by Unanimous Consent.", "Senate")
	message      = act("Floor", "Message on Senate action sent to the House.", "Senate")
	presented    = act("President", "Presented to President.", "House floor actions")
	signed       = act("President", "Signed by President.", "Library of Congress")
	vetoed       = act("President", "Vetoed by President.", "Library of Congress")
	becameLaw    = act("BecameLaw", "Became Public Law No: 119-12.", "Library of Congress")
)

func TestDerive_EmptyHistoryIsIntroduced(t *testing.T) {
	got := DeriveFromHistory(nil, model.ChamberHouse)

	assert.Equal(t, model.StageIntroduced, got.Stage)
	assert.Equal(t, "Introduced", got.Description)
	assert.Equal(t, 10, got.Percent)
}

func TestDerive_PassedBothChambersRegardlessOfLatest(t *testing.T) {
	orders := [][]model.Action{
		{introduced, referred, housePassage, received, senatePass},
		{introduced, referred, housePassage, reconsider, received, senatePass, message},
		{introduced, senatePass, housePassage, reconsider},
		{introduced, housePassage, senatePass, act("Calendars", "Placed on the Union Calendar, Calendar No. 12.", "House floor actions")},
	}

	for i, history := range orders {
		got := DeriveFromHistory(history, model.ChamberHouse)
		assert.Equal(t, model.StagePassedBothChambers, got.Stage, "order %d", i)
		assert.Equal(t, "Passed Both Chambers", got.Description, "order %d", i)
	}
}

func TestDerive_VetoOutranksPassageHistory(t *testing.T) {
	history := []model.Action{introduced, referred, housePassage, senatePass, presented, vetoed}

	got := DeriveFromHistory(history, model.ChamberHouse)

	assert.Equal(t, model.StageVetoed, got.Stage)
	assert.Equal(t, "Vetoed", got.Description)
	assert.Equal(t, 80, got.Percent)
}

func TestDerive_ToPresidentOutranksPassageHistory(t *testing.T) {
	history := []model.Action{introduced, housePassage, senatePass, presented}

	got := DeriveFromHistory(history, model.ChamberHouse)

	assert.Equal(t, model.StageToPresident, got.Stage)
	assert.Equal(t, 85, got.Percent)
}

func TestDerive_SignedByPresident(t *testing.T) {
	history := []model.Action{introduced, referred, senatePass, housePassage, presented, signed}

	got := DeriveFromHistory(history, model.ChamberSenate)

	assert.Equal(t, model.StageSignedByPresident, got.Stage)
	assert.Equal(t, "Signed by President", got.Description)
	assert.Equal(t, 95, got.Percent)
}

func TestDerive_BecameLaw(t *testing.T) {
	tests := []struct {
		name    string
		history []model.Action
	}{
		{"by type", []model.Action{introduced, housePassage, senatePass, signed, becameLaw}},
		{"by text", []model.Action{introduced, signed, act("Floor", "Became Public Law No: 119-3.", "Library of Congress")}},
		{"followed by a note", []model.Action{introduced, becameLaw, act("Floor", "Motion to reconsider laid on the table.", "House floor actions")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveFromHistory(tt.history, model.ChamberHouse)
			assert.Equal(t, model.StageBecameLaw, got.Stage)
			assert.Equal(t, 100, got.Percent)
		})
	}
}

func TestDerive_PassedOneChamberFromLatestFloorAction(t *testing.T) {
	latest := model.Action{
		ActionType: "Floor",
		Text:       "On motion to reconsider and pass... Passed House by recorded vote",
		SourceName: "House Floor",
	}
	history := []model.Action{introduced, referred, reported, latest}

	got := Derive(&latest, history, model.ChamberHouse)

	assert.Equal(t, model.StagePassedOneChamber, got.Stage)
	assert.Equal(t, "Passed One Chamber", got.Description)
	assert.Equal(t, 50, got.Percent)
}

func TestDerive_SingleChamberPassageNeedsLatestFloorAction(t *testing.T) {
	tests := []struct {
		name    string
		history []model.Action
		want    model.Stage
	}{
		{
			name:    "passage is latest",
			history: []model.Action{introduced, referred, housePassage},
			want:    model.StagePassedOneChamber,
		},
		{
			name: "referred in the other chamber after passage",
			history: []model.Action{
				introduced, referred, housePassage, reconsider, received,
				act("IntroReferral", "Read twice and referred to the Committee on Finance.", "Senate"),
			},
			want: model.StageInCommittee,
		},
		{
			name:    "procedural floor note after passage",
			history: []model.Action{introduced, referred, housePassage, reconsider},
			want:    model.StageInCommittee,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveFromHistory(tt.history, model.ChamberHouse)
			assert.Equal(t, tt.want, got.Stage)
			assert.Equal(t, tt.want.String(), got.Description)
		})
	}
}

func TestDerive_ExcludedPassageDoesNotCount(t *testing.T) {
	history := []model.Action{
		introduced, referred,
		act("Floor", "On motion to recommit with instructions Failed by recorded vote: 200 - 220.", "House floor actions"),
		act("Floor", "On passage Failed of passage by the Yeas and Nays.", "House floor actions"),
	}

	got := DeriveFromHistory(history, model.ChamberHouse)

	assert.Equal(t, model.StageInCommittee, got.Stage)
}

func TestDerive_CommitteeAndIntroduced(t *testing.T) {
	tests := []struct {
		name    string
		history []model.Action
		want    model.Stage
	}{
		{"introduced only", []model.Action{introduced}, model.StageIntroduced},
		{"referred", []model.Action{introduced, referred}, model.StageInCommittee},
		{"reported", []model.Action{introduced, reported}, model.StageInCommittee},
		{"calendar after report", []model.Action{introduced, reported, act("Calendars", "Placed on the Union Calendar, Calendar No. 7.", "House floor actions")}, model.StageInCommittee},
		{"unrecognised", []model.Action{act("Floor", "Sponsor introductory remarks on measure.", "House floor actions")}, model.StageIntroduced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveFromHistory(tt.history, model.ChamberHouse)
			assert.Equal(t, tt.want, got.Stage)
			assert.True(t, got.Stage.Valid())
		})
	}
}

func TestDerive_VetoPercentBands(t *testing.T) {
	tests := []struct {
		name    string
		history []model.Action
		want    int
	}{
		{"after both", []model.Action{housePassage, senatePass, vetoed}, 80},
		{"after one", []model.Action{housePassage, vetoed}, 50},
		{"early", []model.Action{introduced, vetoed}, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveFromHistory(tt.history, model.ChamberHouse)
			require.Equal(t, model.StageVetoed, got.Stage)
			assert.Equal(t, tt.want, got.Percent)
		})
	}
}

func TestPercent_OtherChamberOnly(t *testing.T) {
	assert.Equal(t, 55, Percent(model.StagePassedOneChamber, Passage{Senate: true}, model.ChamberHouse))
	assert.Equal(t, 50, Percent(model.StagePassedOneChamber, Passage{House: true}, model.ChamberHouse))
	assert.Equal(t, 55, Percent(model.StagePassedOneChamber, Passage{House: true}, model.ChamberSenate))
}

func TestChamberOf(t *testing.T) {
	tests := []struct {
		name   string
		action model.Action
		want   string
	}{
		{"house by name", model.Action{SourceName: "House floor actions"}, model.ChamberHouse},
		{"senate by name", model.Action{SourceName: "Senate"}, model.ChamberSenate},
		{"house by code", model.Action{SourceCode: "2"}, model.ChamberHouse},
		{"senate by code", model.Action{SourceCode: "0"}, model.ChamberSenate},
		{"library text", model.Action{SourceName: "Library of Congress", SourceCode: "9", Text: "Passed/agreed to in Senate: Passed Senate with an amendment."}, model.ChamberSenate},
		{"unknown", model.Action{SourceName: "Library of Congress", Text: "Became Public Law No: 119-1."}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChamberOf(tt.action))
		})
	}
}

func TestScanPassage_LibraryOfCongressActions(t *testing.T) {
	history := []model.Action{
		{Text: "Passed/agreed to in House: On passage Passed by voice vote.", SourceName: "Library of Congress", SourceCode: "9"},
		{Text: "Passed/agreed to in Senate: Passed Senate without amendment by Unanimous Consent.", SourceName: "Library of Congress", SourceCode: "9"},
	}

	p := ScanPassage(history)

	assert.True(t, p.House)
	assert.True(t, p.Senate)
	assert.True(t, p.Both())
}
