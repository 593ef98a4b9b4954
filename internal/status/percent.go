package status

import "github.com/jjenkins/billtracker/internal/model"

// stagePercent maps each stage to its display percentage
var stagePercent = map[model.Stage]int{
	model.StageIntroduced:         10,
	model.StageInCommittee:        25,
	model.StagePassedOneChamber:   50,
	model.StagePassedBothChambers: 75,
	model.StageToPresident:        85,
	model.StageSignedByPresident:  95,
	model.StageBecameLaw:          100,
}

// Veto bands, chosen by how far the bill got before the veto.
const (
	vetoedAfterBoth = 80
	vetoedAfterOne  = 50
	vetoedEarly     = 20

	// A bill that has only cleared the chamber it did not originate in
	// (typically a companion measure) sits a little further along.
	passedOtherChamber = 55
)

// Percent returns the display percentage for a stage given the bill's
// passage history and origin chamber
func Percent(stage model.Stage, passage Passage, originChamber string) int {
	return percentFor(stage, passage, originChamber)
}

func percentFor(stage model.Stage, passage Passage, originChamber string) int {
	switch stage {
	case model.StageVetoed:
		switch {
		case passage.Both():
			return vetoedAfterBoth
		case passage.Any():
			return vetoedAfterOne
		default:
			return vetoedEarly
		}
	case model.StagePassedOneChamber:
		switch originChamber {
		case model.ChamberHouse:
			if passage.Senate && !passage.House {
				return passedOtherChamber
			}
		case model.ChamberSenate:
			if passage.House && !passage.Senate {
				return passedOtherChamber
			}
		}
	}
	return stagePercent[stage]
}
