package model

// Stage is the canonical progress stage of a bill. The zero value means
// no stage has been derived yet.
type Stage int

const (
	StageIntroduced         Stage = 20
	StageInCommittee        Stage = 40
	StagePassedOneChamber   Stage = 60
	StagePassedBothChambers Stage = 80
	StageVetoed             Stage = 85
	StageToPresident        Stage = 90
	StageSignedByPresident  Stage = 95
	StageBecameLaw          Stage = 100
)

var stageLabels = map[Stage]string{
	StageIntroduced:         "Introduced",
	StageInCommittee:        "In Committee",
	StagePassedOneChamber:   "Passed One Chamber",
	StagePassedBothChambers: "Passed Both Chambers",
	StageVetoed:             "Vetoed",
	StageToPresident:        "To President",
	StageSignedByPresident:  "Signed by President",
	StageBecameLaw:          "Became Law",
}

// Valid reports whether s is one of the defined stages
func (s Stage) Valid() bool {
	_, ok := stageLabels[s]
	return ok
}

// String returns the human-readable label of the stage
func (s Stage) String() string {
	if label, ok := stageLabels[s]; ok {
		return label
	}
	return "Unknown"
}

// Endpoint is a bitmask of the API sub-resources synced for a bill
type Endpoint int

const (
	EndpointDetail Endpoint = 1 << iota
	EndpointActions
	EndpointSummaries
	EndpointTitles
	EndpointText
)

// Has reports whether every bit in o is set in e
func (e Endpoint) Has(o Endpoint) bool {
	return e&o == o
}

var endpointNames = []struct {
	bit  Endpoint
	name string
}{
	{EndpointDetail, "detail"},
	{EndpointActions, "actions"},
	{EndpointSummaries, "summaries"},
	{EndpointTitles, "titles"},
	{EndpointText, "text"},
}

// Names lists the sub-resources set in e, in bit order
func (e Endpoint) Names() []string {
	names := []string{}
	for _, en := range endpointNames {
		if e&en.bit != 0 {
			names = append(names, en.name)
		}
	}
	return names
}
