package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&SysOpr{},
	&SysOprLog{},
	// Booking
	&Category{},
	&Service{},
	&TimeSlot{},
	&Booking{},
	&Review{},
}
