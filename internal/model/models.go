package model

// All 需要自动迁移的表
func All() []any {
	return []any{
		&TKnowledgeBase{},
		&TKnowledgeDocument{},
		&TDocumentChunk{},
		&TKnowledgeQuery{},
		&TAiModel{},
		&TTeamModel{},
	}
}
