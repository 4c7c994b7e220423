package script

import (
	"fmt"
	"math"
)

// Statistics summarises a script.
type Statistics struct {
	// TotalWords counts words in speaker replicas only.
	TotalWords int `json:"totalWords" yaml:"total_words"`

	// TotalDuration is the estimated runtime in minutes.
	TotalDuration float64 `json:"totalDuration" yaml:"total_duration"`

	// TotalDurationFormatted is TotalDuration rendered by [FormatDuration].
	TotalDurationFormatted string `json:"totalDurationFormatted" yaml:"total_duration_formatted"`

	RoleCount    int `json:"roleCount" yaml:"role_count"`
	ReplicaCount int `json:"replicaCount" yaml:"replica_count"`
}

// RoleStatistics is the contribution of a single role to the script.
type RoleStatistics struct {
	RoleID       string   `json:"roleId"`
	Name         string   `json:"name"`
	Type         RoleType `json:"type"`
	ReplicaCount int      `json:"replicaCount"`

	// Words is 0 for anything other than a speaker.
	Words int `json:"words"`

	// Duration is in minutes.
	Duration float64 `json:"duration"`
}

// ComputeStatistics derives [Statistics] from a role and a replica collection.
func ComputeStatistics(roles *Roles, replicas *Replicas) Statistics {
	d := replicas.TotalDuration(roles)
	return Statistics{
		TotalWords:             replicas.TotalWordCount(roles),
		TotalDuration:          d,
		TotalDurationFormatted: FormatDuration(d),
		RoleCount:              roles.Size(),
		ReplicaCount:           replicas.Size(),
	}
}

// ComputeRoleStatistics returns one entry per role, in role order.
func ComputeRoleStatistics(roles *Roles, replicas *Replicas) []RoleStatistics {
	out := make([]RoleStatistics, 0, roles.Size())
	for _, role := range roles.All() {
		rs := RoleStatistics{RoleID: role.ID, Name: role.Name, Type: role.Type}
		for _, r := range replicas.ByRole(role.ID) {
			rs.ReplicaCount++
			if role.IsSpeaker() {
				rs.Words += r.WordCount
			}
			rs.Duration += role.ReplicaMinutes(r.WordCount)
		}
		out = append(out, rs)
	}
	return out
}

// FormatDuration renders minutes as "M:SS". Total seconds are rounded to the
// nearest integer first; minutes are not rolled over into hours. The seconds
// never read 60: anything from 3599.5 s (59.9917 min) up renders "60:00",
// so 59.99 renders "59:59".
func FormatDuration(minutes float64) string {
	if minutes < 0 || math.IsNaN(minutes) {
		minutes = 0
	}
	total := int64(math.Round(minutes * 60))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
