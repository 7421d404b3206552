package server

import (
	"workdesk/internal/domain"
	"workdesk/internal/ledger"
)

// Request payloads

type CreateWorkItemRequest struct {
	ID         *string `json:"id,omitempty"`
	Kind       string  `json:"kind" enum:"onboarding,offboarding,new-joiner,leaver"`
	ClientName string  `json:"client_name"`
	DueDate    *string `json:"due_date,omitempty" format:"date-time"`
}

type AddAssignmentRequest struct {
	RoleID             string `json:"role_id"`
	ChairIndex         int    `json:"chair_index" minimum:"0"`
	PersonID           string `json:"person_id"`
	Notes              string `json:"notes,omitempty"`
	WorkloadPercentage int    `json:"workload_percentage,omitempty" minimum:"0"`
}

type CompleteWorkItemRequest struct {
	Justification string `json:"justification,omitempty"`
}

type CancelWorkItemRequest struct {
	Notes string `json:"notes,omitempty"`
}

type ImportRosterRequest struct {
	People []domain.Person `json:"people"`
}

// Response payloads

type WorkItemResponse struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind" enum:"onboarding,offboarding,new-joiner,leaver"`
	ClientName    string  `json:"client_name"`
	Status        string  `json:"status" enum:"pending,completed,cancelled"`
	BackendStatus *string `json:"backend_status,omitempty" enum:"completed,partially_completed"`
	Justification *string `json:"justification,omitempty"`
	CancelNotes   *string `json:"cancel_notes,omitempty"`
	DueDate       *string `json:"due_date,omitempty" format:"date-time"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
	CompletedAt   *string `json:"completed_at,omitempty" format:"date-time"`
}

func workItemResponse(w domain.WorkItem) WorkItemResponse {
	return WorkItemResponse{
		ID:            w.ID,
		Kind:          w.Kind,
		ClientName:    w.ClientName,
		Status:        w.Status,
		BackendStatus: w.BackendStatus,
		Justification: w.Justification,
		CancelNotes:   w.CancelNotes,
		DueDate:       w.DueDate,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
		CompletedAt:   w.CompletedAt,
	}
}

func mapWorkItems(items []domain.WorkItem) []WorkItemResponse {
	res := make([]WorkItemResponse, 0, len(items))
	for _, w := range items {
		res = append(res, workItemResponse(w))
	}
	return res
}

type TreeResponse struct {
	WorkItem WorkItemResponse `json:"work_item"`
	Teams    []domain.Team    `json:"teams"`
	Progress ledger.Progress  `json:"progress"`
}

type AssignmentResponse struct {
	Assignment domain.Assignment `json:"assignment"`
	Progress   ledger.Progress   `json:"progress"`
}

type ProgressResponse struct {
	Progress ledger.Progress `json:"progress"`
}

type ImportRosterResponse struct {
	Imported int `json:"imported"`
}
