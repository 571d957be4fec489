package models

type ChatRequest struct {
	Message string `json:"message"`
}

type SayRequest struct {
	Text string `json:"text"`
}
