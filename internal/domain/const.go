package domain

const (
	RequesterIdCtxKey = "fl-requesterId"
)
