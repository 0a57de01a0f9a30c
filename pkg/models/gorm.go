package models

func ModelsToAutoMigrate() []interface{} {
	return []interface{}{
		&User{}, // Must be first - other tables reference it
		&Document{},
		&Recipient{},
		&TrackingEvent{},
		&TrackingOutbox{},
		&Reply{},
	}
}
