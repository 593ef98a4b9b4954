// Package status derives a bill's canonical progress stage from its
// legislative actions.
//
// Classification is a best-effort heuristic over free-form action text. It
// is deterministic and has no side effects, but it is not a legal
// determination and will misclassify unusual phrasings.
//
// Rules are evaluated in precedence order, highest stage first. Chamber
// passage is derived from the whole history, so a bill can be "Passed Both
// Chambers" while its latest action is an unrelated procedural note.
// Presidential actions on the latest entry outrank that history scan.
package status

import (
	"strings"

	"github.com/jjenkins/billtracker/internal/model"
)

// Result is the outcome of deriving a bill's status
type Result struct {
	Stage       model.Stage
	Description string
	Percent     int
}

// Passage records which chambers have passed a bill anywhere in its history
type Passage struct {
	House  bool
	Senate bool
}

// Both reports whether the bill passed both chambers
func (p Passage) Both() bool { return p.House && p.Senate }

// Any reports whether the bill passed at least one chamber
func (p Passage) Any() bool { return p.House || p.Senate }

// ScanPassage walks the full action history looking for chamber passage.
// It backs both the "Passed Both Chambers" rule and the veto percentage band.
func ScanPassage(history []model.Action) Passage {
	var p Passage
	for _, a := range history {
		chamber, ok := passedIn(a)
		if !ok {
			continue
		}
		switch chamber {
		case model.ChamberHouse:
			p.House = true
		case model.ChamberSenate:
			p.Senate = true
		}
		if p.Both() {
			break
		}
	}
	return p
}

// input is the precomputed view every rule is evaluated against
type input struct {
	latest     model.Action
	latestText string
	latestType string
	hasLatest  bool
	history    []model.Action
	passage    Passage
}

// rule maps a predicate to the stage it assigns
type rule struct {
	stage model.Stage
	match func(in *input) bool
}

// rules are ordered by precedence; the first match wins
var rules = []rule{
	{model.StageBecameLaw, func(in *input) bool {
		if in.latestType == typeBecameLaw || becameLawText(in.latestText) {
			return true
		}
		for _, a := range in.history {
			if normalizeType(a.ActionType) == typeBecameLaw || becameLawText(strings.ToLower(a.Text)) {
				return true
			}
		}
		return false
	}},
	{model.StageSignedByPresident, func(in *input) bool {
		return in.latestType == typePresident && signedText(in.latestText)
	}},
	{model.StageVetoed, func(in *input) bool {
		return in.latestType == typePresident && vetoedText(in.latestText)
	}},
	{model.StageToPresident, func(in *input) bool {
		return in.latestType == typePresident && presentedText(in.latestText)
	}},
	{model.StagePassedBothChambers, func(in *input) bool {
		return in.passage.Both()
	}},
	{model.StagePassedOneChamber, func(in *input) bool {
		if in.latestType != typeFloor {
			return false
		}
		_, ok := passedIn(in.latest)
		return ok
	}},
	{model.StageInCommittee, func(in *input) bool {
		if in.hasLatest && isCommitteeStage(in.latestType, in.latestText) {
			return true
		}
		for _, a := range in.history {
			if isCommitteeStage(normalizeType(a.ActionType), strings.ToLower(a.Text)) {
				return true
			}
		}
		return false
	}},
	{model.StageIntroduced, func(in *input) bool {
		return in.latestType == typeIntroReferral || introducedText(in.latestText)
	}},
}

func isCommitteeStage(actionType, text string) bool {
	return (actionType == typeCommittee && committeeReported(text)) || referredText(text)
}

// Derive classifies a bill given its latest action, its full action history
// and its origin chamber. latest may be nil, in which case the last entry of
// history is used. An empty history with no latest action yields Introduced.
func Derive(latest *model.Action, history []model.Action, originChamber string) Result {
	in := &input{history: history}
	switch {
	case latest != nil:
		in.latest = *latest
		in.hasLatest = true
	case len(history) > 0:
		in.latest = history[len(history)-1]
		in.hasLatest = true
	}
	in.latestText = strings.ToLower(in.latest.Text)
	in.latestType = normalizeType(in.latest.ActionType)
	in.passage = ScanPassage(history)
	if in.hasLatest && latest != nil {
		// The latest action may not be part of the fetched history.
		if chamber, ok := passedIn(in.latest); ok {
			switch chamber {
			case model.ChamberHouse:
				in.passage.House = true
			case model.ChamberSenate:
				in.passage.Senate = true
			}
		}
	}

	stage := model.StageIntroduced
	for _, r := range rules {
		if r.match(in) {
			stage = r.stage
			break
		}
	}

	return Result{
		Stage:       stage,
		Description: stage.String(),
		Percent:     percentFor(stage, in.passage, originChamber),
	}
}

// DeriveFromHistory classifies a bill whose latest action is the last entry
// of its chronologically ordered history
func DeriveFromHistory(history []model.Action, originChamber string) Result {
	return Derive(nil, history, originChamber)
}
