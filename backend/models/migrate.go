package models

// All lists every model in dependency order for AutoMigrate and DropTable.
func All() []interface{} {
	return []interface{}{
		&UserProfile{},
		&Instrument{},
		&Domain{},
		&Subsection{},
		&Item{},
		&Evaluation{},
		&Answer{},
		&UploadedFile{},
	}
}
