package models

// DefaultGatingTable lists the profile fields each answer type needs before
// the engine may answer. Age and gender refine retrieval but never block.
func DefaultGatingTable() map[AnswerType][]Field {
	return map[AnswerType][]Field{
		AnswerSpecificBenefits:   {FieldProvider, FieldTier},
		AnswerEligibility:        {FieldProvider, FieldTier},
		AnswerCostCoverage:       {FieldProvider, FieldTier},
		AnswerGeneralDescription: {},
		AnswerDocumentsRequired:  {},
		AnswerProcessSteps:       {},
		AnswerOther:              {},
	}
}
