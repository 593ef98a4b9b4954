package model

import "strings"

// Chamber names as they appear in the source data
const (
	ChamberHouse  = "House"
	ChamberSenate = "Senate"
)

// BillType describes one of the legislation types tracked by the API
type BillType struct {
	Code    string
	Label   string
	Chamber string
}

// BillTypes lists every bill type in the order a historical backfill visits them
var BillTypes = []BillType{
	{Code: "hr", Label: "H.R.", Chamber: ChamberHouse},
	{Code: "s", Label: "S.", Chamber: ChamberSenate},
	{Code: "hjres", Label: "H.J.Res.", Chamber: ChamberHouse},
	{Code: "sjres", Label: "S.J.Res.", Chamber: ChamberSenate},
	{Code: "hconres", Label: "H.Con.Res.", Chamber: ChamberHouse},
	{Code: "sconres", Label: "S.Con.Res.", Chamber: ChamberSenate},
	{Code: "hres", Label: "H.Res.", Chamber: ChamberHouse},
	{Code: "sres", Label: "S.Res.", Chamber: ChamberSenate},
}

// LookupBillType finds a bill type by its code, case-insensitively
func LookupBillType(code string) (BillType, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, bt := range BillTypes {
		if bt.Code == code {
			return bt, true
		}
	}
	return BillType{}, false
}

// BillTypeCodes returns the codes of all known bill types
func BillTypeCodes() []string {
	codes := make([]string, len(BillTypes))
	for i, bt := range BillTypes {
		codes[i] = bt.Code
	}
	return codes
}
