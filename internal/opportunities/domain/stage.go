package domain

const (
	StageProspecting = "Prospecting"
	StageDiscovery   = "Discovery"
	StageProposal    = "Proposal"
	StageNegotiation = "Negotiation"
	StageClosedWon   = "Closed_Won"
	StageClosedLost  = "Closed_Lost"
)

var knownStages = map[string]struct{}{
	StageProspecting: {},
	StageDiscovery:   {},
	StageProposal:    {},
	StageNegotiation: {},
	StageClosedWon:   {},
	StageClosedLost:  {},
}

func IsKnownStage(stage string) bool {
	_, ok := knownStages[stage]
	return ok
}

// IsClosedStage reports whether an opportunity has reached a terminal stage.
// Closed opportunities still accept meeting ingestion (post-mortem notes) but
// are excluded from needs-next-call dashboards.
func IsClosedStage(stage string) bool {
	return stage == StageClosedWon || stage == StageClosedLost
}
