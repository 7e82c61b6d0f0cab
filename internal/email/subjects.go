package email

const (
	subjectConsolidationReady    = "Consolidated insights ready"
	subjectConsolidationReadyFmt = "Consolidated insights ready: %s"
	subjectResearchReady         = "Account research ready"
	subjectResearchReadyFmt      = "Account research ready: %s"
	subjectImportReady           = "Your opportunity import has finished"
)
