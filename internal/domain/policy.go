package domain

// PolicyInformation is the policy record attached to a conversation when the
// customer starts a claim.
type PolicyInformation struct {
	PolicyNumber       string  `json:"policy_number"`
	PolicyHolderName   string  `json:"policy_holder_name"`
	PolicyStartDate    string  `json:"policy_start_date"`
	PolicyEndDate      string  `json:"policy_end_date"`
	PremiumAmount      float64 `json:"premium_amount"`
	CoverageDetails    string  `json:"coverage_details"`
	PolicyType         string  `json:"policy_type,omitempty"`
	BeneficiaryName    string  `json:"beneficiary_name,omitempty"`
	ContactInformation string  `json:"contact_information,omitempty"`
	VehicleMake        string  `json:"vehicle_make,omitempty"`
	VehicleModel       string  `json:"vehicle_model,omitempty"`
	VehicleYear        int     `json:"vehicle_year,omitempty"`
	VehicleVIN         string  `json:"vehicle_vin,omitempty"`
}
