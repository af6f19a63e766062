package domain

import (
	"time"
)

type (
	BoardName      = string
	BoardShortName = string
	ThreadId       = int64
	ThreadTitle    = string
)

type BoardMetadata struct {
	Name         BoardName      `json:"name"`
	ShortName    BoardShortName `json:"short_name"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

type ThreadMetadata struct {
	Id         ThreadId       `json:"id"`
	Title      ThreadTitle    `json:"title"`
	Board      BoardShortName `json:"board"`
	NumReplies int            `json:"num_replies"`
	LastBumped time.Time      `json:"last_bumped"`
	IsSticky   bool           `json:"is_sticky"`
}

type Board struct {
	BoardMetadata
	Threads []ThreadMetadata `json:"threads"`
}
