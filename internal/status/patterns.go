package status

import (
	"strings"

	"github.com/jjenkins/billtracker/internal/model"
)

// matcher reports whether a lowercased action text matches a pattern
type matcher func(text string) bool

// phrase matches when text contains s
func phrase(s string) matcher {
	return func(text string) bool {
		return strings.Contains(text, s)
	}
}

// allOf matches when text contains every fragment, in any order
func allOf(fragments ...string) matcher {
	return func(text string) bool {
		for _, f := range fragments {
			if !strings.Contains(text, f) {
				return false
			}
		}
		return true
	}
}

// anyOf matches when at least one of the matchers does
func anyOf(ms ...matcher) matcher {
	return func(text string) bool {
		for _, m := range ms {
			if m(text) {
				return true
			}
		}
		return false
	}
}

var (
	becameLawText = anyOf(
		phrase("became public law"),
		phrase("public law no"),
		phrase("became private law"),
	)

	signedText    = phrase("signed by president")
	vetoedText    = phrase("vetoed")
	presentedText = phrase("presented to president")

	housePassed = anyOf(
		phrase("passed house"),
		phrase("passed/agreed to in house"),
		phrase("on passage passed"),
		phrase("passed by recorded vote"),
		phrase("passed by voice vote"),
		phrase("passed by the yeas and nays"),
		phrase("passed without objection"),
		allOf("suspend the rules and pass", "agreed to"),
		allOf("on agreeing to the resolution", "agreed to"),
	)

	senatePassed = anyOf(
		phrase("passed senate"),
		phrase("passed/agreed to in senate"),
		phrase("agreed to in senate"),
		allOf("senate", "passed by unanimous consent"),
		allOf("senate", "passed by yea-nay vote"),
	)

	// Procedural notes that mention passage without recording one.
	passageExcluded = anyOf(
		phrase("motion to reconsider laid on the table"),
		phrase("laid on the table"),
		phrase("failed of passage"),
		phrase("failed by"),
		phrase("not agreed to"),
		phrase("motion to recommit"),
		phrase("vitiated"),
		phrase("cloture"),
	)

	committeeReported = phrase("reported")
	referredText      = phrase("referred to")
	introducedText    = phrase("introduced")
)

// Action type codes as published by the source API, lowercased
const (
	typeBecameLaw     = "becamelaw"
	typePresident     = "president"
	typeFloor         = "floor"
	typeCommittee     = "committee"
	typeIntroReferral = "introreferral"
)

// ChamberOf determines which chamber recorded an action. The source system
// name decides when present; otherwise the source code, and for actions
// recorded by the Library of Congress the action text itself.
func ChamberOf(a model.Action) string {
	name := strings.ToLower(a.SourceName)
	switch {
	case strings.Contains(name, "house"):
		return model.ChamberHouse
	case strings.Contains(name, "senate"):
		return model.ChamberSenate
	}

	switch strings.TrimSpace(a.SourceCode) {
	case "0":
		return model.ChamberSenate
	case "1", "2":
		return model.ChamberHouse
	}

	text := strings.ToLower(a.Text)
	switch {
	case strings.Contains(text, "in house"), strings.Contains(text, "passed house"):
		return model.ChamberHouse
	case strings.Contains(text, "in senate"), strings.Contains(text, "passed senate"):
		return model.ChamberSenate
	}
	return ""
}

// passedIn reports whether a records passage in its own chamber
func passedIn(a model.Action) (chamber string, ok bool) {
	text := strings.ToLower(a.Text)
	if passageExcluded(text) {
		return "", false
	}

	switch chamber = ChamberOf(a); chamber {
	case model.ChamberHouse:
		return chamber, housePassed(text)
	case model.ChamberSenate:
		return chamber, senatePassed(text)
	}
	return "", false
}

func normalizeType(t string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(t), "-", ""))
}
