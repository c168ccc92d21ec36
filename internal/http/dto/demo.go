package dto

// VerificationStage etapa del simulador.
type VerificationStage struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// VerificationResponse snapshot del simulador.
type VerificationResponse struct {
	Run      uint64              `json:"run"`
	Stages   []VerificationStage `json:"stages"`
	Progress int                 `json:"progress"`
	Running  bool                `json:"running"`
	Done     bool                `json:"done"`
}
