package schema

import "fedflow/pkg/contracts/domain"

// boolHeaders are the seven small-business vendor flags, all boolean kind.
var boolHeaders = []struct {
	header string
	source string
}{
	{"Is Vendor Business Type - 8A Program Participant", "c8a_program_participant"},
	{"Is Vendor Business Type - Economically Disadvantaged Women-Owned Small Business", "economically_disadvantaged_women_owned_small_business"},
	{"Is Vendor Business Type - HUBZone Firm", "historically_underutilized_business_zone_hubzone_firm"},
	{"Is Vendor Business Type - Self-Certified Small Disadvantaged Business", "self_certified_small_disadvantaged_business"},
	{"Is Vendor Business Type - Service-Disabled Veteran-Owned Business", "service_disabled_veteran_owned_business"},
	{"Is Vendor Business Type - Veteran-Owned Business", "veteran_owned_business"},
	{"Is Vendor Business Type - Women-Owned Small Business", "women_owned_small_business"},
}

// DefaultSpecs returns the built-in 23-column contract for the federal
// contract transaction feed. Config may replace it wholesale; it is never
// mutated in place.
func DefaultSpecs() []FieldSpec {
	specs := []FieldSpec{
		{Header: domain.HeaderFiscalYear, Source: "action_date_fiscal_year", Kind: domain.KindInteger, Required: true, Range: &Range{Min: 1990, Max: 2030}},
		{Header: domain.HeaderPIID, Source: "award_id_piid", Kind: domain.KindText, Required: true},
		{Header: domain.HeaderAAC, Source: "awarding_agency_code", Kind: domain.KindText},
		{Header: domain.HeaderInstrumentType, Source: "award_type", Kind: domain.KindText},
		{Header: domain.HeaderReferencedIDVPIID, Source: "parent_award_id_piid", Kind: domain.KindText, Optional: true},
		{Header: domain.HeaderModificationNumber, Source: "modification_number", Kind: domain.KindText},
		{Header: domain.HeaderDateSigned, Source: "action_date", Kind: domain.KindDate},
		{Header: domain.HeaderCompletionDate, Source: "period_of_performance_current_end_date", Kind: domain.KindDate},
		{Header: domain.HeaderLastDateToOrder, Source: "ordering_period_end_date", Kind: domain.KindDate, Optional: true},
		{Header: domain.HeaderDollarsObligated, Source: "federal_action_obligation", Kind: domain.KindDecimal},
		{Header: domain.HeaderTotalContractValue, Source: "base_and_all_options_value", Kind: domain.KindDecimal},
		{Header: domain.HeaderLegalBusinessName, Source: "recipient_name", Kind: domain.KindText, Required: true},
		{Header: domain.HeaderContractingOffice, Source: "awarding_office_name", Kind: domain.KindText},
		{Header: domain.HeaderFundingAgencyName, Source: "funding_agency_name", Kind: domain.KindText},
		{Header: domain.HeaderDescription, Source: "transaction_description", Kind: domain.KindText},
		{Header: domain.HeaderBusinessSize, Source: "contracting_officers_determination_of_business_size", Kind: domain.KindText},
	}
	for _, b := range boolHeaders {
		specs = append(specs, FieldSpec{Header: b.header, Source: b.source, Kind: domain.KindBoolean})
	}
	return specs
}

// Default returns the validated built-in table.
func Default() *Table {
	t, err := NewTable(DefaultSpecs())
	if err != nil {
		// The built-in table is fixed at compile time; a failure here is a
		// programming error.
		panic(err)
	}
	return t
}
