package api

import "github.com/google/uuid"

type InsuranceCompany struct {
	Id   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type InsurancePlan struct {
	Id        uuid.UUID `json:"id"`
	CompanyId uuid.UUID `json:"companyId"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
}

type MedicalBill struct {
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type Transcript struct {
	Date  string `json:"date"`
	Notes string `json:"notes"`
}

type InsuranceDetails struct {
	MedicalBills []MedicalBill `json:"medicalBills"`
	Transcripts  []Transcript  `json:"transcripts"`
}

type UserInsurance struct {
	CompanyId   uuid.UUID        `json:"companyId"`
	CompanyName string           `json:"companyName"`
	PlanId      uuid.UUID        `json:"planId"`
	PlanName    string           `json:"planName"`
	PlanType    string           `json:"planType"`
	MemberId    string           `json:"memberId,omitempty"`
	GroupId     string           `json:"groupId,omitempty"`
	DetailsJson InsuranceDetails `json:"detailsJson"`
}

type UpdateInsuranceRequest struct {
	CompanyId   string            `json:"companyId"`
	PlanId      string            `json:"planId"`
	MemberId    string            `json:"memberId"`
	GroupId     string            `json:"groupId"`
	DetailsJson *InsuranceDetails `json:"detailsJson,omitempty"`
}
