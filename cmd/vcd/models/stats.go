package models

import "time"

// UserStat is one leaderboard row.
// Maps to: user_receive_stats and user_share_stats tables
type UserStat struct {
	Username  string    `db:"username" json:"user"`
	Count     int64     `db:"total" json:"count"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// Leaderboard lists the users with the most claims and the most campaigns shared
type Leaderboard struct {
	Receive []UserStat `json:"receive"`
	Share   []UserStat `json:"share"`
}
